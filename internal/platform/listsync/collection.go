package listsync

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/clinsys/clinsys/pkg/pagination"
)

// Collection is what a list endpoint returned: either a server page or a
// bare array holding the whole collection.
type Collection[T any] interface {
	isCollection()
}

// Paged is a server-paginated envelope.
type Paged[T any] struct {
	Envelope pagination.Envelope[T]
}

// Unpaged is a bare array; the client paginates it.
type Unpaged[T any] struct {
	Items []T
}

func (Paged[T]) isCollection()   {}
func (Unpaged[T]) isCollection() {}

// Decode decides the collection shape from the first JSON token and
// unmarshals accordingly. An empty or null body is an empty Unpaged.
func Decode[T any](raw json.RawMessage) (Collection[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Unpaged[T]{}, nil
	}

	switch trimmed[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode array collection: %w", err)
		}
		return Unpaged[T]{Items: items}, nil
	case '{':
		var env pagination.Envelope[T]
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("decode page envelope: %w", err)
		}
		return Paged[T]{Envelope: env}, nil
	default:
		return nil, fmt.Errorf("unexpected collection payload starting with %q", trimmed[0])
	}
}
