package sandbox

import (
	"io"
	"reflect"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/andrescamacho/takaro-connector/internal/domain/execution"
)

var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("sandbox: CBOR encoder initialization failed: " + err.Error())
	}

	// Function data is JSON-shaped, so untyped maps must decode with
	// string keys.
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("sandbox: CBOR decoder initialization failed: " + err.Error())
	}
}

// Invocation is the request handed to a child sandbox process
type Invocation struct {
	FunctionID  string         `cbor:"function_id"`
	DomainID    string         `cbor:"domain_id"`
	Code        string         `cbor:"code"`
	Data        map[string]any `cbor:"data"`
	Token       string         `cbor:"token"`
	BaseURL     string         `cbor:"base_url"`
	MaxLogLines int            `cbor:"max_log_lines"`
	Timeout     time.Duration  `cbor:"timeout"`
}

// Outcome is what a child process writes back
type Outcome struct {
	Logs       []execution.LogLine `cbor:"logs"`
	Success    bool                `cbor:"success"`
	Unresolved string              `cbor:"unresolved,omitempty"`
	Error      string              `cbor:"error,omitempty"`
}

func writeMessage(w io.Writer, v any) error {
	return encMode.NewEncoder(w).Encode(v)
}

func readMessage(r io.Reader, v any) error {
	return decMode.NewDecoder(r).Decode(v)
}
