package decoder

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type JsonDecoder struct{}

func (j *JsonDecoder) Decode(data []byte) (map[string]any, error) {
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "failed to decode JSON")
	}
	return result, nil
}
