package domain

// Channel 消息渠道
type Channel string

const (
	ChannelEmail   Channel = "EMAIL"   // 邮件
	ChannelSMS     Channel = "SMS"     // 短信
	ChannelChat    Channel = "CHAT"    // 聊天工具
	ChannelPush    Channel = "PUSH"    // 推送
	ChannelWebhook Channel = "WEBHOOK" // 回调
)

func (c Channel) String() string {
	return string(c)
}

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat, ChannelPush, ChannelWebhook:
		return true
	default:
		return false
	}
}

// Direction 消息方向
type Direction string

const (
	DirectionInbound  Direction = "INBOUND"
	DirectionOutbound Direction = "OUTBOUND"
	DirectionDraft    Direction = "DRAFT"
)
