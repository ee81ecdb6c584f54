package encoding

import (
	cbor "github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

// encMode produces the canonical encoding: identical values always encode to
// identical bytes, which is required for anything that gets hashed or signed.
var encMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		// a panic here indicates a developer error in the options above.
		panic(err)
	}
	return em
}()

var decMode = func() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}()

// Encode encodes obj into canonical CBOR.
func Encode(obj interface{}) ([]byte, error) {
	raw, err := encMode.Marshal(obj)
	if err != nil {
		return nil, xerrors.Errorf("cbor encode %T: %w", obj, err)
	}
	return raw, nil
}

// Decode decodes raw CBOR into obj, which must be a pointer.
func Decode(raw []byte, obj interface{}) error {
	if err := decMode.Unmarshal(raw, obj); err != nil {
		return xerrors.Errorf("cbor decode %T: %w", obj, err)
	}
	return nil
}

// MustEncode is Encode for values whose encoding cannot fail, such as
// structs of plain integers and byte slices.
func MustEncode(obj interface{}) []byte {
	raw, err := Encode(obj)
	if err != nil {
		panic(err)
	}
	return raw
}
