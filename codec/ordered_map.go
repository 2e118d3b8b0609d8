package codec

import (
	"bytes"
	"encoding/json"
	"iter"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"gopkg.in/yaml.v3"
)

// OrderedMap 保持插入顺序的 map，编解码时保留键的顺序
type OrderedMap[V any] struct {
	keys   []string
	values map[string]V
}

func NewOrderedMap[V any]() *OrderedMap[V] {
	return &OrderedMap[V]{values: map[string]V{}}
}

// Set 已存在的键保持原来的位置
func (m *OrderedMap[V]) Set(key string, value V) {
	if m.values == nil {
		m.values = map[string]V{}
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

func (m *OrderedMap[V]) Get(key string) (V, bool) {
	if m == nil {
		var zero V
		return zero, false
	}
	v, ok := m.values[key]
	return v, ok
}

func (m *OrderedMap[V]) Keys() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.keys...)
}

func (m *OrderedMap[V]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *OrderedMap[V]) All() iter.Seq2[string, V] {
	return func(yield func(string, V) bool) {
		if m == nil {
			return
		}
		for _, k := range m.keys {
			if !yield(k, m.values[k]) {
				return
			}
		}
	}
}

func (m *OrderedMap[V]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeJSON(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeJSON(&buf, m.values[k]); err != nil {
			return nil, errors.Wrapf(err, "encode value of %q failed", k)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encodeJSON 不转义 HTML 字符，去掉 Encoder 追加的换行
func encodeJSON(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

func (m *OrderedMap[V]) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.Errorf("expected a JSON object, got %v", tok)
	}

	m.keys, m.values = nil, map[string]V{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("expected a string key, got %v", tok)
		}
		var value V
		if err := dec.Decode(&value); err != nil {
			return errors.Wrapf(err, "decode value of %q failed", key)
		}
		m.Set(key, value)
	}
	_, err = dec.Token()
	return err
}

func (m *OrderedMap[V]) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range m.keys {
		var value yaml.Node
		if err := value.Encode(m.values[k]); err != nil {
			return nil, err
		}
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, &value)
	}
	return node, nil
}

func (m *OrderedMap[V]) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: expected a mapping", node.Line)
	}

	m.keys, m.values = nil, map[string]V{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var value V
		if err := node.Content[i+1].Decode(&value); err != nil {
			return errors.Wrapf(err, "decode value of %q failed", key)
		}
		m.Set(key, value)
	}
	return nil
}

func (m *OrderedMap[V]) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(len(m.keys)); err != nil {
		return err
	}
	for _, k := range m.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		if err := enc.Encode(m.values[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *OrderedMap[V]) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return err
	}

	m.keys, m.values = nil, map[string]V{}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return err
		}
		var value V
		if err := dec.Decode(&value); err != nil {
			return errors.Wrapf(err, "decode value of %q failed", key)
		}
		m.Set(key, value)
	}
	return nil
}

func (m *OrderedMap[V]) MarshalBSONValue() (bsontype.Type, []byte, error) {
	d := make(bson.D, 0, m.Len())
	for k, v := range m.All() {
		d = append(d, bson.E{Key: k, Value: v})
	}
	return bson.MarshalValue(d)
}

func (m *OrderedMap[V]) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	if t != bsontype.EmbeddedDocument {
		return errors.Errorf("expected a BSON document, got %v", t)
	}
	elems, err := bson.Raw(data).Elements()
	if err != nil {
		return err
	}

	m.keys, m.values = nil, map[string]V{}
	for _, e := range elems {
		var value V
		if err := e.Value().Unmarshal(&value); err != nil {
			return errors.Wrapf(err, "decode value of %q failed", e.Key())
		}
		m.Set(e.Key(), value)
	}
	return nil
}
