package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"

	internal "github.com/dineflow/restaurant-ordering/internal"
	gatewaytypes "github.com/dineflow/restaurant-ordering/internal/core/datamodel/gateway"
)

// API is the slice of the UPI gateway the checkout flow consumes.
type API interface {
	CreateOrder(ctx context.Context, req *gatewaytypes.CreateOrderRequest) (*gatewaytypes.CreateOrderResponse, error)
	GetOrder(ctx context.Context, gatewayOrderID string) (*gatewaytypes.OrderStatusResponse, error)
	GetPayments(ctx context.Context, gatewayOrderID string) ([]gatewaytypes.Payment, error)
}

type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg internal.GatewayConfig, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-client-id", cfg.ClientID).
		SetHeader("x-client-secret", cfg.ClientSecret).
		SetHeader("x-api-version", cfg.APIVersion)

	return &Client{
		http:   httpClient,
		logger: logger,
	}
}

type gatewayErrorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

// classify maps a gateway response onto the error taxonomy: transport
// failures are network errors, 5xx are server errors, everything else is a
// gateway rejection.
func (c *Client) classify(operation string, resp *resty.Response, err error) *internal.AppError {
	if err != nil {
		c.logger.Error("gateway request failed", "operation", operation, "error", err)
		return internal.NewNetworkError(fmt.Sprintf("gateway %s failed", operation), err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		c.logger.Error("gateway returned server error",
			"operation", operation,
			"status", resp.StatusCode(),
			"body", string(resp.Body()))
		return internal.NewServerError(fmt.Sprintf("gateway %s returned %d", operation, resp.StatusCode()), nil)
	}

	var body gatewayErrorBody
	_ = json.Unmarshal(resp.Body(), &body)
	message := body.Message
	if message == "" {
		message = fmt.Sprintf("gateway %s rejected with status %d", operation, resp.StatusCode())
	}
	c.logger.Error("gateway rejected request",
		"operation", operation,
		"status", resp.StatusCode(),
		"gateway_code", body.Code,
		"message", message)
	return &internal.AppError{
		Type:       internal.ErrorTypePayment,
		Code:       internal.ErrCodeGatewayRejected,
		Message:    message,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

func (c *Client) CreateOrder(ctx context.Context, req *gatewaytypes.CreateOrderRequest) (*gatewaytypes.CreateOrderResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	var result gatewaytypes.CreateOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/pg/orders")
	if err != nil || resp.IsError() {
		return nil, c.classify("create order", resp, err)
	}

	c.logger.Info("gateway order created",
		"gateway_order_id", result.OrderID,
		"order_status", result.OrderStatus,
		"amount", result.OrderAmount)

	return &result, nil
}

func (c *Client) GetOrder(ctx context.Context, gatewayOrderID string) (*gatewaytypes.OrderStatusResponse, error) {
	var result gatewaytypes.OrderStatusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetPathParam("order_id", gatewayOrderID).
		Get("/pg/orders/{order_id}")
	if err != nil || resp.IsError() {
		return nil, c.classify("get order", resp, err)
	}

	c.logger.Debug("gateway order status",
		"gateway_order_id", gatewayOrderID,
		"order_status", result.OrderStatus)

	return &result, nil
}

func (c *Client) GetPayments(ctx context.Context, gatewayOrderID string) ([]gatewaytypes.Payment, error) {
	var result []gatewaytypes.Payment
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		SetPathParam("order_id", gatewayOrderID).
		Get("/pg/orders/{order_id}/payments")
	if err != nil || resp.IsError() {
		return nil, c.classify("get payments", resp, err)
	}

	c.logger.Debug("gateway payment attempts",
		"gateway_order_id", gatewayOrderID,
		"count", len(result))

	return result, nil
}
