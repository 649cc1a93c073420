package message

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fiberclient/internal/canon"
)

func int64Ptr(n int64) *int64 { return &n }

func TestExtractSequenceInfo(t *testing.T) {
	tests := []struct {
		name    string
		msg     Message
		want    SequenceInfo
		bearing bool
	}{
		{"create", CreateStateMachine{FiberID: "f", Definition: json.RawMessage(`{}`)}, SequenceInfo{}, false},
		{"create script", CreateScript{FiberID: "f", ScriptProgram: json.RawMessage(`{}`)}, SequenceInfo{}, false},
		{"transition", TransitionStateMachine{FiberID: "f", EventName: "go", TargetSequenceNumber: 4}, SequenceInfo{"f", 4}, true},
		{"archive", ArchiveStateMachine{FiberID: "f", TargetSequenceNumber: 9}, SequenceInfo{"f", 9}, true},
		{"invoke with seq", InvokeScript{FiberID: "s", Method: "m", TargetSequenceNumber: int64Ptr(2)}, SequenceInfo{"s", 2}, true},
		{"invoke without seq", InvokeScript{FiberID: "s", Method: "m"}, SequenceInfo{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, ok := ExtractSequenceInfo(tt.msg)
			assert.Equal(t, tt.bearing, ok)
			assert.Equal(t, tt.want, info)
		})
	}
}

func TestWithSequence(t *testing.T) {
	tr := WithSequence(TransitionStateMachine{FiberID: "f", EventName: "go"}, 7)
	info, ok := ExtractSequenceInfo(tr)
	require.True(t, ok)
	assert.Equal(t, int64(7), info.TargetSeq)

	inv := WithSequence(InvokeScript{FiberID: "s", Method: "m"}, 3)
	info, ok = ExtractSequenceInfo(inv)
	require.True(t, ok)
	assert.Equal(t, int64(3), info.TargetSeq)

	create := CreateStateMachine{FiberID: "f"}
	assert.Equal(t, Message(create), WithSequence(create, 1))
}

func TestEnvelopeCanonicalBytes(t *testing.T) {
	m := TransitionStateMachine{
		FiberID:              "f-1",
		EventName:            "go",
		Payload:              json.RawMessage(`{"b": 1, "a": 2}`),
		TargetSequenceNumber: 3,
	}

	got, err := canon.Marshal(Wrap(m))
	require.NoError(t, err)
	assert.Equal(t,
		`{"TransitionStateMachine":{"eventName":"go","fiberId":"f-1","payload":{"a":2,"b":1},"targetSequenceNumber":3}}`,
		string(got))
}

func TestEnvelopeOmitsOptionalFields(t *testing.T) {
	got, err := canon.Marshal(Wrap(InvokeScript{FiberID: "s", Method: "m", Args: json.RawMessage(`[1]`)}))
	require.NoError(t, err)
	assert.Equal(t, `{"InvokeScript":{"args":[1],"fiberId":"s","method":"m"}}`, string(got))

	got, err = canon.Marshal(Wrap(CreateStateMachine{
		FiberID:     "f",
		Definition:  json.RawMessage(`{"states":{}}`),
		InitialData: json.RawMessage(`{}`),
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"CreateStateMachine":{"definition":{"states":{}},"fiberId":"f","initialData":{}}}`, string(got))
}

func TestDecodeRoundTrip(t *testing.T) {
	msgs := []Message{
		CreateStateMachine{FiberID: "f", Definition: json.RawMessage(`{"a":1}`), InitialData: json.RawMessage(`{}`), ParentFiberID: "p"},
		TransitionStateMachine{FiberID: "f", EventName: "go", Payload: json.RawMessage(`{}`), TargetSequenceNumber: 1},
		ArchiveStateMachine{FiberID: "f", TargetSequenceNumber: 2},
		CreateScript{FiberID: "s", ScriptProgram: json.RawMessage(`{"p":1}`)},
		InvokeScript{FiberID: "s", Method: "m", Args: json.RawMessage(`{}`), TargetSequenceNumber: int64Ptr(5)},
	}

	for _, m := range msgs {
		t.Run(string(m.Kind()), func(t *testing.T) {
			data, err := json.Marshal(Wrap(m))
			require.NoError(t, err)

			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, m.Kind(), decoded.Kind())

			eq, err := canon.Equal(Wrap(m), Wrap(decoded))
			require.NoError(t, err)
			assert.True(t, eq)

			var env Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			assert.Equal(t, m.Kind(), env.Message.Kind())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"not json", `nope`},
		{"empty object", `{}`},
		{"two kinds", `{"ArchiveStateMachine":{},"CreateScript":{}}`},
		{"unknown kind", `{"Mint":{}}`},
		{"bad body", `{"ArchiveStateMachine":{"targetSequenceNumber":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.in))
			require.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		msg   Message
		field string
	}{
		{"valid transition", TransitionStateMachine{FiberID: "f", EventName: "go"}, ""},
		{"missing fiber", TransitionStateMachine{EventName: "go"}, "fiberId"},
		{"missing event", TransitionStateMachine{FiberID: "f"}, "eventName"},
		{"non-NFC event", TransitionStateMachine{FiberID: "f", EventName: "cafe\u0301"}, "eventName"},
		{"negative seq", ArchiveStateMachine{FiberID: "f", TargetSequenceNumber: -1}, "targetSequenceNumber"},
		{"bad payload", TransitionStateMachine{FiberID: "f", EventName: "go", Payload: json.RawMessage(`{`)}, "payload"},
		{"create without definition", CreateStateMachine{}, "definition"},
		{"create without id ok", CreateStateMachine{Definition: json.RawMessage(`{}`)}, ""},
		{"script without program", CreateScript{}, "scriptProgram"},
		{"invoke negative seq", InvokeScript{FiberID: "s", Method: "m", TargetSequenceNumber: int64Ptr(-2)}, "targetSequenceNumber"},
		{"invoke missing method", InvokeScript{FiberID: "s"}, "method"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestFiberID(t *testing.T) {
	assert.Equal(t, "a", FiberID(TransitionStateMachine{FiberID: "a"}))
	assert.Equal(t, "b", FiberID(InvokeScript{FiberID: "b"}))
	assert.Equal(t, "", FiberID(CreateStateMachine{}))
}
