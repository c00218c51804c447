package ai

import (
	"context"
	"errors"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"go.uber.org/zap"
)

// ResponsesClient реализует Client поверх Responses API. История диалога хранится
// на стороне приложения и передаётся в каждом запросе, поэтому клиент одинаково
// работает и с OpenAI, и с OpenAI-совместимыми локальными провайдерами
// (LMStudio, Ollama) через baseURL.
type ResponsesClient struct {
	client *openai.Client
	model  openai.ChatModel
	logger *zap.SugaredLogger
}

// NewResponsesClient создаёт клиент. baseURL пустой — облачный OpenAI.
func NewResponsesClient(model string, baseURL string, logger *zap.SugaredLogger) *ResponsesClient {
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	c := openai.NewClient(opts...)
	return &ResponsesClient{client: &c, model: openai.ChatModel(model), logger: logger}
}

func (c *ResponsesClient) SendMessage(ctx context.Context, req Request) (Reply, error) {
	if c.client == nil {
		return Reply{}, errors.New("nil openai client")
	}

	// Системные инструкции (как первая реплика role=system).
	inputItems := responses.ResponseInputParam{}
	if req.System != "" {
		sys := responses.ResponseInputMessageContentListParam{
			{OfInputText: &responses.ResponseInputTextParam{Text: req.System}},
		}
		inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(sys, responses.EasyInputMessageRoleSystem))
	}

	// История: чередуем user/assistant реплики как есть.
	for _, h := range req.History {
		if h.User != "" {
			u := responses.ResponseInputMessageContentListParam{
				{OfInputText: &responses.ResponseInputTextParam{Text: h.User}},
			}
			inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(u, responses.EasyInputMessageRoleUser))
		}
		if h.Assistant != "" {
			var out responses.ResponseOutputTextParam
			out.Text = h.Assistant
			out.Annotations = nil
			assistantContent := []responses.ResponseOutputMessageContentUnionParam{
				{OfOutputText: &out},
			}
			inputItems = append(inputItems,
				responses.ResponseInputItemParamOfOutputMessage(assistantContent, "", responses.ResponseOutputMessageStatusCompleted))
		}
	}

	// Пользовательский ввод: текст + изображения.
	user := responses.ResponseInputMessageContentListParam{
		{OfInputText: &responses.ResponseInputTextParam{Text: req.Text}},
	}
	for _, u := range req.ImageURLs {
		imageParam := responses.ResponseInputContentParamOfInputImage(responses.ResponseInputImageDetailAuto)
		imageParam.OfInputImage.ImageURL = openai.String(u)
		user = append(user, imageParam)
	}
	inputItems = append(inputItems, responses.ResponseInputItemParamOfMessage(user, responses.EasyInputMessageRoleUser))

	start := time.Now()
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: c.model,
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: inputItems},
	})
	dur := time.Since(start)
	if err != nil {
		c.logger.Errorw("Ошибка ответа провайдера", "model", c.model, "duration", dur.String(), "error", err)
		return Reply{}, err
	}
	c.logger.Infow("Ответ провайдера получен", "model", c.model, "duration", dur.String())

	return Reply{
		Text: resp.OutputText(),
		Tokens: TokenUsage{
			Input:  resp.Usage.InputTokens,
			Output: resp.Usage.OutputTokens,
			Total:  resp.Usage.TotalTokens,
		},
	}, nil
}
