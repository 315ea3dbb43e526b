package feishu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SendCard 向群聊发送消息卡片
func (c *FeishuClient) SendCard(ctx context.Context, chatID string, card InteractiveCard) (string, error) {
	cardBytes, err := json.Marshal(card)
	if err != nil {
		return "", fmt.Errorf("序列化卡片内容失败: %w", err)
	}
	reqBody := map[string]interface{}{
		"receive_id": chatID,
		"msg_type":   "interactive",
		"content":    string(cardBytes),
	}

	var resp SendMessageResponse
	if err := c.doRequest(ctx, http.MethodPost, "/open-apis/im/v1/messages?receive_id_type=chat_id", reqBody, &resp); err != nil {
		return "", fmt.Errorf("发送消息卡片失败: %w", err)
	}
	return resp.Data.MessageID, nil
}

// NewNoticeCard 通用通知卡片，ok=false 时标题为红色
func NewNoticeCard(title string, ok bool, fields [][2]string, note string) InteractiveCard {
	template := "green"
	if !ok {
		template = "red"
	}

	var cardFields []CardField
	for _, f := range fields {
		cardFields = append(cardFields, CardField{
			IsShort: true,
			Text:    CardText{Tag: "lark_md", Content: fmt.Sprintf("**%s**\n%s", f[0], f[1])},
		})
	}
	elements := []CardElement{{Tag: "div", Fields: cardFields}}
	if note != "" {
		elements = append(elements,
			CardElement{Tag: "hr"},
			CardElement{Tag: "note", Elements: []CardElement{{Tag: "plain_text", Content: note}}},
		)
	}

	return InteractiveCard{
		Config:   &CardConfig{WideScreenMode: true},
		Header:   &CardHeader{Title: CardText{Tag: "plain_text", Content: title}, Template: template},
		Elements: elements,
	}
}
