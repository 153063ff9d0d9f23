package vault

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const entryFormatVersion = 1

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("vault: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("vault: CBOR decoder initialization failed: " + err.Error())
	}
}

// entryCodec turns Params into sealed blobs and back. All backends share it,
// so a blob written by one backend is readable by any other given the same
// identity.
type entryCodec struct {
	sealer *Sealer
}

func newEntryCodec(sealer *Sealer) (entryCodec, error) {
	if sealer == nil {
		return entryCodec{}, ErrNoSealer
	}
	return entryCodec{sealer: sealer}, nil
}

func (c entryCodec) encode(params Params) ([]byte, error) {
	compact, err := Compact(params)
	if err != nil {
		return nil, err
	}

	body, err := encMode.Marshal(map[string]any(compact))
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	plaintext := make([]byte, 0, len(body)+1)
	plaintext = append(plaintext, entryFormatVersion)
	plaintext = append(plaintext, body...)

	return c.sealer.Seal(plaintext)
}

func (c entryCodec) decode(blob []byte) (Params, error) {
	plaintext, err := c.sealer.Open(blob)
	if err != nil {
		return nil, corrupt(err)
	}
	if len(plaintext) < 1 {
		return nil, corrupt(errors.New("empty entry"))
	}
	if plaintext[0] != entryFormatVersion {
		return nil, corrupt(fmt.Errorf("unknown entry format version %d", plaintext[0]))
	}

	var raw map[string]any
	if err := decMode.Unmarshal(plaintext[1:], &raw); err != nil {
		return nil, corrupt(err)
	}

	params, err := Compact(Params(raw))
	if err != nil {
		return nil, corrupt(err)
	}
	return params, nil
}
