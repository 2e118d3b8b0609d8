package codec

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/hatlonely/tabdb/ref"
	"github.com/hatlonely/tabdb/schema"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
	"go.mongodb.org/mongo-driver/bson"
	"gopkg.in/yaml.v3"
)

// Namespace codec 在 ref 中的注册命名空间
const Namespace = "github.com/hatlonely/tabdb/codec"

type Codec interface {
	Marshal(doc *Document) ([]byte, error)
	// Unmarshal 格式错误返回 schema.ErrDeserialization
	Unmarshal(data []byte) (*Document, error)
}

func init() {
	ref.MustRegister(Namespace, "JSONCodec", NewJSONCodecWithOptions)
	ref.MustRegister(Namespace, "YAMLCodec", NewYAMLCodec)
	ref.MustRegister(Namespace, "MsgPackCodec", NewMsgPackCodec)
	ref.MustRegister(Namespace, "BSONCodec", NewBSONCodec)
}

type JSONCodecOptions struct {
	Indent string `cfg:"indent" def:"  "`
}

// JSONCodec 不转义非 ASCII 字符和 HTML 字符
type JSONCodec struct {
	indent string
}

func NewJSONCodecWithOptions(options *JSONCodecOptions) *JSONCodec {
	indent := "  "
	if options != nil && options.Indent != "" {
		indent = options.Indent
	}
	return &JSONCodec{indent: indent}
}

func (c *JSONCodec) Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", c.indent)
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "json encode failed")
	}
	return buf.Bytes(), nil
}

func (c *JSONCodec) Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithMessagef(schema.ErrDeserialization, "json decode failed: %v", err)
	}
	return &doc, nil
}

type YAMLCodec struct{}

func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

func (c *YAMLCodec) Marshal(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, errors.Wrap(err, "yaml encode failed")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "yaml encode failed")
	}
	return buf.Bytes(), nil
}

func (c *YAMLCodec) Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithMessagef(schema.ErrDeserialization, "yaml decode failed: %v", err)
	}
	return &doc, nil
}

// MsgPackCodec 二进制格式，适合体积较大的目录
type MsgPackCodec struct{}

func NewMsgPackCodec() *MsgPackCodec {
	return &MsgPackCodec{}
}

func (c *MsgPackCodec) Marshal(doc *Document) ([]byte, error) {
	data, err := msgpack.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack encode failed")
	}
	return data, nil
}

func (c *MsgPackCodec) Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := msgpack.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithMessagef(schema.ErrDeserialization, "msgpack decode failed: %v", err)
	}
	return &doc, nil
}

type BSONCodec struct{}

func NewBSONCodec() *BSONCodec {
	return &BSONCodec{}
}

func (c *BSONCodec) Marshal(doc *Document) ([]byte, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "bson encode failed")
	}
	return data, nil
}

func (c *BSONCodec) Unmarshal(data []byte) (*Document, error) {
	var doc Document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, errors.WithMessagef(schema.ErrDeserialization, "bson decode failed: %v", err)
	}
	return &doc, nil
}

// NewCodecForPath 按扩展名选择 codec：.yaml/.yml, .msgpack/.mp, .bson，其他为 json
func NewCodecForPath(path string) (Codec, error) {
	typ := "JSONCodec"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		typ = "YAMLCodec"
	case ".msgpack", ".mp":
		typ = "MsgPackCodec"
	case ".bson":
		typ = "BSONCodec"
	}
	return ref.NewWithTypeOptions[Codec](&ref.TypeOptions{Namespace: Namespace, Type: typ})
}

// SaveFile 先写临时文件再重命名，失败时不会留下不完整的文件
func SaveFile(path string, name string, registry *schema.Registry) error {
	c, err := NewCodecForPath(path)
	if err != nil {
		return err
	}
	data, err := c.Marshal(Encode(name, registry))
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "create directory %s failed", dir)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temp file failed")
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "chmod %s failed", tmp.Name())
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrapf(err, "write %s failed", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s failed", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename to %s failed", path)
	}
	return nil
}

// LoadFile 返回文档中的数据库名和重建的目录
func LoadFile(path string) (string, *schema.Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, errors.Wrapf(err, "read %s failed", path)
	}
	c, err := NewCodecForPath(path)
	if err != nil {
		return "", nil, err
	}
	doc, err := c.Unmarshal(data)
	if err != nil {
		return "", nil, errors.WithMessagef(err, "load %s failed", path)
	}
	registry, err := Decode(doc)
	if err != nil {
		return "", nil, errors.WithMessagef(err, "load %s failed", path)
	}
	return doc.Name, registry, nil
}
