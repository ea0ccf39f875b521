package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMessages struct {
	lastReq *larkim.CreateMessageReq
	resp    *larkim.CreateMessageResp
	err     error
}

func (f *fakeMessages) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	f.lastReq = req
	return f.resp, f.err
}

func newTestMessenger(f *fakeMessages) *Messenger {
	logger := zap.NewNop()
	return &Messenger{
		messageAPI: &MessageAPI{messages: f, logger: logger},
		logger:     logger,
	}
}

func TestMessenger_SendMessage(t *testing.T) {
	f := &fakeMessages{resp: &larkim.CreateMessageResp{
		Data: &larkim.CreateMessageRespData{MessageId: larkcore.StringPtr("om_123")},
	}}
	m := newTestMessenger(f)

	content := `Request "Laptop" was approved.` + "\nComments: ok"
	require.NoError(t, m.SendMessage(context.Background(), "ou_abc", content))

	require.NotNil(t, f.lastReq)
	require.NotNil(t, f.lastReq.Body)
	assert.Equal(t, "ou_abc", *f.lastReq.Body.ReceiveId)
	assert.Equal(t, "text", *f.lastReq.Body.MsgType)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(*f.lastReq.Body.Content), &decoded))
	assert.Equal(t, content, decoded["text"])
}

func TestMessenger_SendMessage_Errors(t *testing.T) {
	tests := []struct {
		name    string
		openID  string
		content string
		fake    *fakeMessages
	}{
		{name: "empty open id", openID: "", content: "x", fake: &fakeMessages{}},
		{name: "empty content", openID: "ou_abc", content: "", fake: &fakeMessages{}},
		{name: "transport error", openID: "ou_abc", content: "x", fake: &fakeMessages{err: errors.New("timeout")}},
		{
			name:    "api failure",
			openID:  "ou_abc",
			content: "x",
			fake: &fakeMessages{resp: &larkim.CreateMessageResp{
				CodeError: larkcore.CodeError{Code: 230001, Msg: "invalid receive_id"},
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMessenger(tt.fake)
			assert.Error(t, m.SendMessage(context.Background(), tt.openID, tt.content))
		})
	}
}
