package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/org-harvester/internal/harvest"
)

var errNotSequence = errors.New("top-level value is not an array of objects")

// JSONAdapter streams an array of objects, either at the top level or under
// a configured root key. Dotted roots ("data.items") descend nested objects.
type JSONAdapter struct {
	getter harvest.Getter
	logger *zap.Logger
}

// NewJSONAdapter creates a JSONAdapter.
func NewJSONAdapter(getter harvest.Getter, logger *zap.Logger) *JSONAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JSONAdapter{getter: getter, logger: logger}
}

// Records decodes elements one at a time. A document whose shape is not a
// sequence is a fatal ParseError for this source; non-object elements are
// skipped with a warning.
func (a *JSONAdapter) Records(ctx context.Context, src harvest.SourceConfig) iter.Seq2[harvest.RawRecord, error] {
	return func(yield func(harvest.RawRecord, error) bool) {
		rc, location, err := openDocument(ctx, a.getter, src)
		if err != nil {
			yield(harvest.RawRecord{}, err)
			return
		}
		defer func() {
			if cerr := rc.Close(); cerr != nil {
				a.logger.Debug("failed to close json source", zap.String("source", src.Name), zap.Error(cerr))
			}
		}()

		dec := json.NewDecoder(rc)
		dec.UseNumber()
		if err := seekArray(dec, src.Root); err != nil {
			yield(harvest.RawRecord{}, &harvest.ParseError{Location: location, Fatal: true, Err: err})
			return
		}

		for index := 0; dec.More(); index++ {
			if err := ctx.Err(); err != nil {
				yield(harvest.RawRecord{}, err)
				return
			}
			var element any
			if err := dec.Decode(&element); err != nil {
				yield(harvest.RawRecord{}, &harvest.ParseError{
					Location: fmt.Sprintf("%s[%d]", location, index),
					Fatal:    true,
					Err:      err,
				})
				return
			}
			obj, ok := element.(map[string]any)
			if !ok {
				parseErr := &harvest.ParseError{
					Location: fmt.Sprintf("%s[%d]", location, index),
					Err:      fmt.Errorf("element is %s, not an object", jsonKind(element)),
				}
				if !yield(harvest.RawRecord{}, parseErr) {
					return
				}
				continue
			}
			fields := recordFields(func(canonical string) string {
				return atomString(obj[src.FieldKey(canonical)])
			})
			if !yield(harvest.RawRecord{Fields: fields, SourceURL: location, Source: &src}, nil) {
				return
			}
		}
	}
}

// seekArray positions dec just inside the array to stream.
func seekArray(dec *json.Decoder, root string) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("empty document: %w", errNotSequence)
		}
		return fmt.Errorf("read json: %w", err)
	}
	delim, ok := tok.(json.Delim)
	switch {
	case ok && delim == '[':
		return nil
	case ok && delim == '{' && root != "":
		return seekRoot(dec, strings.Split(root, "."))
	case ok && delim == '{':
		return fmt.Errorf("top-level object without root: %w", errNotSequence)
	default:
		return errNotSequence
	}
}

// seekRoot walks the object dec is inside of until it finds path.
func seekRoot(dec *json.Decoder, path []string) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("read json key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		if key != path[0] {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("skip %q: %w", key, err)
			}
			continue
		}
		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("read %q: %w", key, err)
		}
		delim, ok := tok.(json.Delim)
		if len(path) == 1 {
			if ok && delim == '[' {
				return nil
			}
			return fmt.Errorf("root %q: %w", key, errNotSequence)
		}
		if !ok || delim != '{' {
			return fmt.Errorf("root %q is not an object", key)
		}
		return seekRoot(dec, path[1:])
	}
	return fmt.Errorf("root %q not found: %w", path[0], errNotSequence)
}

// atomString renders scalar JSON values; objects and arrays yield "".
func atomString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
