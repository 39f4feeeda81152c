package controller

import (
	"bufio"

	"doc-qa-be/internal/dto"
	"doc-qa-be/internal/pkg/serverutils"
	"doc-qa-be/internal/pkg/sse"
	"doc-qa-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	Stream(ctx *fiber.Ctx) error
	CancelStream(ctx *fiber.Ctx) error
	Send(ctx *fiber.Ctx) error
}

type chatController struct {
	chatService service.IChatService
}

func NewChatController(chatService service.IChatService) IChatController {
	return &chatController{
		chatService: chatService,
	}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Post("", c.Send)
	h.Post("stream", c.Stream)
	h.Delete("stream/:id", c.CancelStream)
}

// Stream opens the answer session and relays it as server-sent events.
// The body writer runs after this handler returns, so rejections (busy
// session, unknown conversation) still surface as plain JSON errors.
func (c *chatController) Stream(ctx *fiber.Ctx) error {
	var req dto.StreamChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	handle, err := c.chatService.StartStream(ctx.Context(), &req)
	if err != nil {
		return err
	}

	// The user turn is an ordinary conversation write, recorded before any
	// fragment goes out. The session itself only ever persists the answer.
	if err := handle.PersistQuery(ctx.Context()); err != nil {
		handle.Abort()
		return err
	}

	ctx.Set(fiber.HeaderContentType, "text/event-stream")
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")
	ctx.Set("X-Conversation-Id", handle.Session.ConversationId)

	ctx.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		handle.Drain(sse.NewEncoder(w))
	})

	return nil
}

func (c *chatController) CancelStream(ctx *fiber.Ctx) error {
	res, err := c.chatService.CancelStream(ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success cancel stream", res))
}

func (c *chatController) Send(ctx *fiber.Ctx) error {
	var req dto.SendChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.chatService.Send(ctx.Context(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send chat", res))
}
