package bond

import (
	"io"
	"io/ioutil"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/bleperiph"
)

type bondFile struct {
	Bonds []remoteKeyInfo `json:"bonds"`
}

type remoteKeyInfo struct {
	Address       string                  `json:"address"`
	LongTermKey   string                  `json:"longTermKey"`
	SecurityLevel bleperiph.SecurityLevel `json:"securityLevel"`
}

// Export writes infos as a JSON bond file.
func Export(w io.Writer, infos []bleperiph.BondInfo) error {
	bf := bondFile{Bonds: make([]remoteKeyInfo, 0, len(infos))}
	for _, info := range infos {
		bf.Bonds = append(bf.Bonds, remoteKeyInfo{
			Address:       info.Addr.String(),
			LongTermKey:   info.LTK.String(),
			SecurityLevel: info.Security,
		})
	}

	out, err := jsoniter.MarshalIndent(bf, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode bond file")
	}
	_, err = w.Write(append(out, '\n'))
	return err
}

// Import reads a bond file written by Export.
func Import(r io.Reader) ([]bleperiph.BondInfo, error) {
	in, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read bond file")
	}

	var bf bondFile
	if err := jsoniter.Unmarshal(in, &bf); err != nil {
		return nil, errors.Wrap(err, "decode bond file")
	}

	out := make([]bleperiph.BondInfo, 0, len(bf.Bonds))
	for _, rki := range bf.Bonds {
		a, err := bleperiph.ParseAddr(rki.Address)
		if err != nil {
			return nil, errors.Wrapf(err, "bond %q", rki.Address)
		}
		ltk, err := bleperiph.ParseLongTermKey(rki.LongTermKey)
		if err != nil {
			return nil, errors.Wrapf(err, "bond %s", a)
		}
		out = append(out, bleperiph.BondInfo{Addr: a, LTK: ltk, Security: rki.SecurityLevel})
	}
	return out, nil
}
