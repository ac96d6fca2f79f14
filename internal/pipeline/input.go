package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/danielpatrickdp/magscore/internal/gate"
)

// DecodeInput gate-checks raw JSON at every depth before decoding it, so a
// forbidden field is refused even where the typed input has no slot for it.
func DecodeInput(g *gate.Gate, data []byte) (MatchInput, error) {
	var loose map[string]any
	if err := json.Unmarshal(data, &loose); err != nil {
		return MatchInput{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := g.CheckMap("input", loose); err != nil {
		return MatchInput{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var in MatchInput
	if err := dec.Decode(&in); err != nil {
		return MatchInput{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return in, nil
}

// DecodeMap is DecodeInput for an already decoded object, as carried by gRPC.
func DecodeMap(g *gate.Gate, m map[string]any) (MatchInput, error) {
	if err := g.CheckMap("input", m); err != nil {
		return MatchInput{}, err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return MatchInput{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return DecodeInput(g, data)
}
