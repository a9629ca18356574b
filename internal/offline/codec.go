package offline

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"

	"docvault/internal/models"
)

// codec turns documents into the compressed payloads kept in the byte store.
type codec struct {
	encoders sync.Pool
	decoders sync.Pool
}

func newCodec() *codec {
	return &codec{
		encoders: sync.Pool{
			New: func() any {
				enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
				return enc
			},
		},
		decoders: sync.Pool{
			New: func() any {
				dec, _ := zstd.NewReader(nil)
				return dec
			},
		},
	}
}

func (c *codec) encode(doc models.RemoteDocument) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	enc := c.encoders.Get().(*zstd.Encoder)
	defer c.encoders.Put(enc)
	return enc.EncodeAll(raw, nil), nil
}

func (c *codec) decode(payload []byte) (models.RemoteDocument, error) {
	dec := c.decoders.Get().(*zstd.Decoder)
	defer c.decoders.Put(dec)

	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return models.RemoteDocument{}, fmt.Errorf("decompress payload: %w", err)
	}
	var doc models.RemoteDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.RemoteDocument{}, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}
