package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypePortfolioPreview = "portfolio:preview"
)

// PortfolioPreviewPayload 描述生成作品集缩略图所需的最小信息。
// 注意：发布凭证绝不进入任务载荷，缩略图由已落库的快照渲染。
type PortfolioPreviewPayload struct {
	PortfolioID   uint   `json:"portfolio_id"`
	UserID        uint   `json:"user_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewPortfolioPreviewTask 构造一个新的缩略图生成任务。
func NewPortfolioPreviewTask(portfolioID, userID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(PortfolioPreviewPayload{
		PortfolioID:   portfolioID,
		UserID:        userID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePortfolioPreview, payload), nil
}
