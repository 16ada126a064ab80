package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"gamesmith/internal/logging"
	"gamesmith/internal/types"
)

// ModelResponse is the envelope the model is directed to answer with: a
// rationale for the chosen step, the remaining plan steps, and the operations
// to apply this cycle.
type ModelResponse struct {
	Rationale  string          `json:"rationale"`
	Steps      []string        `json:"steps"`
	Operations []wireOperation `json:"operations"`
}

// wireOperation is one operation as it appears on the wire, before parameter
// decoding. Params stays loosely typed here so that a malformed operation can
// be reported with its index instead of failing the envelope decode.
type wireOperation struct {
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

// envelopeProbe detects whether the operations key was present at all.
// A response without it is a protocol violation, distinct from a response
// with an empty operations list, which is a legal no-op cycle.
type envelopeProbe struct {
	Operations *json.RawMessage `json:"operations"`
}

// Parser turns raw model output into a validated ModelResponse. Models wrap
// JSON in markdown fences or lead with prose despite being told not to, so
// extraction is layered: fenced block first, then the whole response.
type Parser struct {
	mu    sync.Mutex
	stats ParserStats
}

// ParserStats counts how responses parsed, for tuning the directive text.
type ParserStats struct {
	Direct   int
	Fenced   int
	Failures int
}

func NewParser() *Parser {
	return &Parser{}
}

// Stats returns a copy of the running counters.
func (p *Parser) Stats() ParserStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Parse extracts and validates the JSON envelope from a raw completion.
// Failure here is fatal for the cycle: no operation has run yet, so the
// session is left exactly as it was.
func (p *Parser) Parse(raw string) (*ModelResponse, error) {
	candidate, fenced := extractCandidate(raw)

	if !strings.HasPrefix(candidate, "{") {
		p.count(func(s *ParserStats) { s.Failures++ })
		logging.OrchestratorWarn("response is not a JSON object (starts with %q)", firstRune(candidate))
		return nil, types.Faultf(types.ClassInvalid, "model response is not a JSON object")
	}

	var probe envelopeProbe
	if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
		p.count(func(s *ParserStats) { s.Failures++ })
		return nil, types.WrapFault(types.ClassInvalid, err, "model response is not valid JSON")
	}
	if probe.Operations == nil {
		p.count(func(s *ParserStats) { s.Failures++ })
		return nil, types.Faultf(types.ClassInvalid, "model response has no operations array")
	}

	var resp ModelResponse
	if err := json.Unmarshal([]byte(candidate), &resp); err != nil {
		p.count(func(s *ParserStats) { s.Failures++ })
		return nil, types.WrapFault(types.ClassInvalid, err, "model response envelope malformed")
	}

	if fenced {
		p.count(func(s *ParserStats) { s.Fenced++ })
	} else {
		p.count(func(s *ParserStats) { s.Direct++ })
	}
	return &resp, nil
}

func (p *Parser) count(apply func(*ParserStats)) {
	p.mu.Lock()
	apply(&p.stats)
	p.mu.Unlock()
}

// extractCandidate returns the JSON text to decode. A response that already
// starts with an object marker is taken whole; otherwise a fenced block
// anywhere in the response wins, and failing that the whole trimmed response
// is the candidate. The second return reports whether a fence was stripped.
func extractCandidate(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed, false
	}

	for _, fence := range []string{"```json", "```JSON", "```"} {
		start := strings.Index(trimmed, fence)
		if start < 0 {
			continue
		}
		rest := trimmed[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			// Unterminated fence: take everything after it.
			return strings.TrimSpace(rest), true
		}
		return strings.TrimSpace(rest[:end]), true
	}

	return trimmed, false
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// writeFragmentParams, replaceRangeParams, and generateImageParams are the
// per-kind parameter shapes. Missing fields decode to zero values and are
// left for the executor to skip per operation; only the params object itself
// and the fragment target are validated here, because those failures have to
// stop the batch before anything mutates.
type writeFragmentParams struct {
	Target  string `json:"target"`
	Content string `json:"content"`
}

type replaceRangeParams struct {
	Target    string `json:"target"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	Content   string `json:"content"`
}

type generateImageParams struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// BuildOperations decodes the wire operations into executor operations.
// Every violation is reported with the offending index. An unknown op kind
// is not a violation: it passes through and the executor skips it, so a
// newer model emitting a newer verb degrades one operation, not the batch.
func BuildOperations(wire []wireOperation) ([]types.Operation, error) {
	ops := make([]types.Operation, 0, len(wire))

	for i, w := range wire {
		if strings.TrimSpace(w.Op) == "" {
			return nil, types.Faultf(types.ClassInvalid, "operation %d: missing op kind", i)
		}
		if len(w.Params) == 0 || string(w.Params) == "null" {
			return nil, types.Faultf(types.ClassInvalid, "operation %d: missing params object", i)
		}

		op, err := decodeOperation(w)
		if err != nil {
			return nil, types.WrapFault(types.ClassInvalid, err, "operation %d (%s)", i, w.Op)
		}

		if op.HasTarget() {
			target, ok := types.NormalizeTarget(string(op.Target))
			if !ok {
				return nil, types.Faultf(types.ClassInvalid, "operation %d: unmappable target %q", i, string(op.Target))
			}
			op.Target = target
		}

		ops = append(ops, op)
	}

	return ops, nil
}

func decodeOperation(w wireOperation) (types.Operation, error) {
	kind := types.OperationKind(strings.TrimSpace(w.Op))

	switch kind {
	case types.OpWriteFragment:
		var p writeFragmentParams
		if err := json.Unmarshal(w.Params, &p); err != nil {
			return types.Operation{}, fmt.Errorf("bad params: %w", err)
		}
		return types.Operation{Kind: kind, Target: types.FragmentTarget(p.Target), Content: p.Content}, nil

	case types.OpReplaceRange:
		var p replaceRangeParams
		if err := json.Unmarshal(w.Params, &p); err != nil {
			return types.Operation{}, fmt.Errorf("bad params: %w", err)
		}
		return types.Operation{
			Kind:      kind,
			Target:    types.FragmentTarget(p.Target),
			StartLine: p.StartLine,
			EndLine:   p.EndLine,
			Content:   p.Content,
		}, nil

	case types.OpGenerateImage:
		var p generateImageParams
		if err := json.Unmarshal(w.Params, &p); err != nil {
			return types.Operation{}, fmt.Errorf("bad params: %w", err)
		}
		return types.Operation{Kind: kind, Name: p.Name, Prompt: p.Prompt}, nil

	default:
		if !json.Valid(w.Params) {
			return types.Operation{}, fmt.Errorf("bad params for unknown kind")
		}
		return types.Operation{Kind: kind}, nil
	}
}
