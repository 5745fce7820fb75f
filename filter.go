package divert

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// FilterError describes why the engine rejected a filter string.
type FilterError struct {
	Filter string
	Layer  Layer
	Msg    string
	Pos    uint
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("divert: filter %q on %v layer: %s at position %d", e.Filter, e.Layer, e.Msg, e.Pos)
}

// CheckFilter compiles filter for layer with e and returns a *FilterError
// when it does not compile.
func CheckFilter(e Engine, filter string, layer Layer) error {
	if strings.TrimSpace(filter) == "" {
		return errors.WithStack(ErrEmptyFilter)
	}
	ok, msg, pos := e.CheckFilter(filter, layer)
	if !ok {
		return &FilterError{Filter: filter, Layer: layer, Msg: msg, Pos: pos}
	}
	return nil
}

// ValidateFilter reports whether filter compiles for layer on the default
// backend, with the engine's explanation when it does not.
func ValidateFilter(filter string, layer Layer) (bool, string) {
	b, err := DefaultBackend()
	if err != nil {
		return false, err.Error()
	}
	if err := CheckFilter(b, filter, layer); err != nil {
		var fe *FilterError
		if errors.As(err, &fe) {
			return false, fmt.Sprintf("%s (position %d)", fe.Msg, fe.Pos)
		}
		return false, err.Error()
	}
	return true, ""
}

// EvaluateFilter reports whether packet, as described by address on layer,
// matches filter. address is not modified.
func (s *Session) EvaluateFilter(filter string, layer Layer, packet []byte, address *Address) (bool, error) {
	if err := checkIO(packet, address); err != nil {
		return false, err
	}
	if strings.TrimSpace(filter) == "" {
		return false, errors.WithStack(ErrEmptyFilter)
	}
	addr := *address
	addr.SetLayer(layer)
	ok, err := s.backend.EvalFilter(filter, packet, &addr)
	if err != nil {
		return false, opError("eval filter", err)
	}
	return ok, nil
}
