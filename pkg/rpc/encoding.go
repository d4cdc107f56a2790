package rpc

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/klauspost/compress/zstd"
	"github.com/mr-tron/base58"

	"github.com/fortiblox/savefi/pkg/types"
)

// Data encodings accepted in request options, named as solana-go names them.
const (
	EncodingBase58     = string(solana.EncodingBase58)
	EncodingBase64     = string(solana.EncodingBase64)
	EncodingBase64Zstd = string(solana.EncodingBase64Zstd)
	EncodingJSONParsed = string(solana.EncodingJSONParsed)
)

// maxBase58Data bounds account data returned as base58.
const maxBase58Data = 128

var errBase58TooLarge = fmt.Errorf("account data over %d bytes cannot be base58 encoded, use base64", maxBase58Data)

// EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDec, _ = zstd.NewReader(nil)
)

type dataCodec struct {
	encode func([]byte) (string, error)
	decode func(string) ([]byte, error)
}

var codecs = map[string]dataCodec{
	EncodingBase58: {
		encode: func(b []byte) (string, error) {
			if len(b) > maxBase58Data {
				return "", errBase58TooLarge
			}
			return base58.Encode(b), nil
		},
		decode: base58.Decode,
	},
	EncodingBase64: {
		encode: func(b []byte) (string, error) { return EncodeBase64(b), nil },
		decode: base64.StdEncoding.DecodeString,
	},
	EncodingBase64Zstd: {
		encode: func(b []byte) (string, error) {
			return EncodeBase64(zstdEnc.EncodeAll(b, make([]byte, 0, len(b)))), nil
		},
		decode: func(s string) ([]byte, error) {
			raw, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, err
			}
			return zstdDec.DecodeAll(raw, nil)
		},
	},
}

// codecFor resolves an encoding name. Empty means base64; account data
// has no parsed form, so jsonParsed also answers in base64.
func codecFor(encoding string) (string, dataCodec, error) {
	if encoding == "" || encoding == EncodingJSONParsed {
		encoding = EncodingBase64
	}
	c, ok := codecs[encoding]
	if !ok {
		return "", dataCodec{}, fmt.Errorf("unsupported encoding: %s", encoding)
	}
	return encoding, c, nil
}

func EncodeBase58(b []byte) string { return base58.Encode(b) }

func EncodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// ValidateEncoding reports whether encoding may be requested.
func ValidateEncoding(encoding string) error {
	_, _, err := codecFor(encoding)
	return err
}

// EncodeAccountData returns the [data, encoding] pair used in account
// responses.
func EncodeAccountData(data []byte, encoding string) ([]any, error) {
	name, c, err := codecFor(encoding)
	if err != nil {
		return nil, err
	}
	s, err := c.encode(data)
	if err != nil {
		return nil, err
	}
	return []any{s, name}, nil
}

func DecodeAccountData(encoded, encoding string) ([]byte, error) {
	_, c, err := codecFor(encoding)
	if err != nil {
		return nil, err
	}
	return c.decode(encoded)
}

// DecodeTransaction parses a wire transaction. With no encoding given,
// base58 is tried before base64.
func DecodeTransaction(encoded, encoding string) (*types.Transaction, error) {
	var (
		raw []byte
		err error
	)
	switch encoding {
	case "":
		if raw, err = base58.Decode(encoded); err != nil {
			raw, err = base64.StdEncoding.DecodeString(encoded)
		}
	case EncodingBase58, EncodingBase64:
		raw, err = codecs[encoding].decode(encoded)
	default:
		return nil, fmt.Errorf("unsupported transaction encoding: %s", encoding)
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("transaction is not valid %s", encodingOrAuto(encoding)), err)
	}
	return types.DeserializeTransaction(raw)
}

func encodingOrAuto(encoding string) string {
	if encoding == "" {
		return "base58 or base64"
	}
	return encoding
}

// SliceData applies a dataSlice option. Out-of-range offsets give an empty
// slice and lengths are clamped to the data.
func SliceData(data []byte, slice *DataSlice) []byte {
	if slice == nil {
		return data
	}
	n := uint64(len(data))
	if slice.Offset >= n {
		return []byte{}
	}
	end := min(slice.Offset+slice.Length, n)
	if end < slice.Offset {
		end = n
	}
	return data[slice.Offset:end]
}
