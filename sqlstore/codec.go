package sqlstore

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/hupe1980/agentgraph/core"
	"github.com/zeebo/blake3"
)

// encMode produces canonical CBOR so equal contents hash identically.
var encMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

func encodeContent(c core.Content) (data, hash []byte, err error) {
	data, err = encMode.Marshal(c)
	if err != nil {
		return nil, nil, fmt.Errorf("encode link content: %w", err)
	}
	sum := blake3.Sum256(data)
	return data, sum[:], nil
}

func decodeContent(data []byte) (core.Content, error) {
	var c core.Content
	if err := cbor.Unmarshal(data, &c); err != nil {
		return core.Content{}, fmt.Errorf("decode link content: %w", err)
	}
	return c, nil
}
