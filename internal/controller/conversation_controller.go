package controller

import (
	"doc-qa-be/internal/dto"
	"doc-qa-be/internal/pkg/serverutils"
	"doc-qa-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IConversationController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	List(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	Delete(ctx *fiber.Ctx) error
	Clear(ctx *fiber.Ctx) error
}

// ClearNotifier pushes a store-wide reset to connected clients.
type ClearNotifier interface {
	BroadcastConversationsCleared(payload interface{})
}

type conversationController struct {
	conversationService service.IConversationService
	notifier            ClearNotifier
}

func NewConversationController(conversationService service.IConversationService, notifier ClearNotifier) IConversationController {
	return &conversationController{
		conversationService: conversationService,
		notifier:            notifier,
	}
}

func (c *conversationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/conversation/v1")
	h.Post("", c.Create)
	h.Get("", c.List)
	h.Post("clear", c.Clear)
	h.Get(":id", c.Show)
	h.Delete(":id", c.Delete)
}

func (c *conversationController) Create(ctx *fiber.Ctx) error {
	var req dto.CreateConversationRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return err
		}
		if err := serverutils.ValidateRequest(req); err != nil {
			return err
		}
	}

	res, err := c.conversationService.Create(ctx.Context(), req.ConversationId)
	if err != nil {
		return err
	}

	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Success create conversation", res))
}

func (c *conversationController) List(ctx *fiber.Ctx) error {
	res, err := c.conversationService.List(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success list conversations", res))
}

func (c *conversationController) Show(ctx *fiber.Ctx) error {
	res, err := c.conversationService.Get(ctx.Context(), ctx.Params("id"))
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success show conversation", res))
}

func (c *conversationController) Delete(ctx *fiber.Ctx) error {
	if err := c.conversationService.Delete(ctx.Context(), ctx.Params("id")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[interface{}]("Success delete conversation", nil))
}

func (c *conversationController) Clear(ctx *fiber.Ctx) error {
	res, err := c.conversationService.ClearAll(ctx.Context())
	if err != nil {
		return err
	}

	if c.notifier != nil {
		c.notifier.BroadcastConversationsCleared(res)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success clear conversations", res))
}
