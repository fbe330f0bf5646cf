package bridge

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/bytedance/sonic"
)

// Методы bridge.
const (
	MethodPing     = "ping"
	MethodBundle   = "context_bundle"
	MethodQuery    = "context_query"
	MethodRetrieve = "context_retrieve"
	MethodDestroy  = "context_destroy"
)

// Request — конверт запроса.
type Request struct {
	Method string `json:"method"`
	Params any    `json:"params"`
	ID     *int64 `json:"id"`
}

// Reply — конверт ответа.
type Reply struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
	ID     *int64          `json:"id"`
}

// EncodeRequest сериализует запрос. Nil params отправляются как {}.
func EncodeRequest(method string, params any, id int64) ([]byte, error) {
	if params == nil {
		params = struct{}{}
	}
	return sonic.Marshal(Request{Method: method, Params: params, ID: &id})
}

// DecodeReply разбирает ответ.
func DecodeReply(data []byte) (*Reply, error) {
	var rep Reply
	if err := sonic.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}
	return &rep, nil
}

// decodeResult разбирает поле result в out.
func decodeResult(rep *Reply, out any) error {
	if out == nil || len(rep.Result) == 0 || string(rep.Result) == "null" {
		return nil
	}
	return sonic.Unmarshal(rep.Result, out)
}

// BundleParams — параметры context_bundle.
type BundleParams struct {
	Src    []string `json:"src"`
	Dst    string   `json:"dst"`
	Format string   `json:"format"`
}

// BundleResult — результат context_bundle.
type BundleResult struct {
	Status string `json:"status"`
	Tag    string `json:"tag"`
	Stub   bool   `json:"stub,omitempty"`
}

// QueryParams — параметры context_query.
type QueryParams struct {
	TagPattern  string `json:"tag_pattern"`
	BlobPattern string `json:"blob_pattern"`
}

// Match — одна найденная пара (tag, blob).
type Match struct {
	Tag  string `json:"tag"`
	Blob string `json:"blob"`
	Size *int64 `json:"size,omitempty"`
}

// QueryResult — результат context_query.
type QueryResult struct {
	Matches []Match `json:"matches"`
	Stub    bool    `json:"stub,omitempty"`
}

// RetrieveParams — параметры context_retrieve.
type RetrieveParams struct {
	Tag      string `json:"tag"`
	BlobName string `json:"blob_name"`
}

// RetrieveResult — результат context_retrieve.
type RetrieveResult struct {
	Data     *string `json:"data"`
	Encoding *string `json:"encoding"`
	Stub     bool    `json:"stub,omitempty"`
}

// Found возвращает true, если bridge вернул данные.
func (r *RetrieveResult) Found() bool {
	return r.Data != nil
}

// Bytes декодирует данные. Кодировка "hex" декодируется, без кодировки
// строка возвращается как есть. Без данных возвращает nil.
func (r *RetrieveResult) Bytes() ([]byte, error) {
	if r.Data == nil {
		return nil, nil
	}
	if r.Encoding == nil || *r.Encoding == "" {
		return []byte(*r.Data), nil
	}
	if *r.Encoding != "hex" {
		return nil, fmt.Errorf("unsupported encoding %q", *r.Encoding)
	}
	data, err := hex.DecodeString(*r.Data)
	if err != nil {
		return nil, fmt.Errorf("decode hex payload: %w", err)
	}
	return data, nil
}

// DestroyParams — параметры context_destroy.
type DestroyParams struct {
	Tags []string `json:"tags"`
}

// DestroyResult — результат context_destroy.
type DestroyResult struct {
	Status    string   `json:"status"`
	Destroyed []string `json:"destroyed"`
	Stub      bool     `json:"stub,omitempty"`
}
