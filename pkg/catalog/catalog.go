// Package catalog looks up products of a product group from the catalog service.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/pagebot/pkg/models"
	"github.com/dukex/pagebot/pkg/otelhelper"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultLimit   = 10
	defaultTimeout = 5 * time.Second
)

var ErrProductGroupRequired = errors.New("product group id is required")

// Client reads products over HTTP. Concurrent lookups of the same group and limit share one request;
// nothing is cached between calls so catalog edits show up on the next render.
type Client struct {
	logger *slog.Logger
	client *resty.Client
	group  singleflight.Group
	tracer trace.Tracer
}

type Option func(*Client)

func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

func NewClient(logger *slog.Logger, baseURL string, opts ...Option) *Client {
	c := &Client{
		logger: logger.With("module", "catalog"),
		client: resty.New().
			SetBaseURL(strings.TrimSuffix(baseURL, "/")).
			SetTimeout(defaultTimeout),
		tracer: otel.Tracer("pagebot-catalog"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type productsResponse struct {
	Products []models.Product `json:"products"`
}

func (c *Client) GetProducts(ctx context.Context, productGroupID string, limit int) ([]models.Product, error) {
	if productGroupID == "" {
		return nil, ErrProductGroupRequired
	}

	if limit <= 0 {
		limit = DefaultLimit
	}

	ctx, span := otelhelper.StartSpan(ctx, c.tracer, "catalog.get_products",
		attribute.String(otelhelper.ProductGroupIDKey, productGroupID),
		attribute.Int("pagebot.product.limit", limit),
	)
	defer span.End()

	key := productGroupID + "/" + strconv.Itoa(limit)

	value, err, shared := c.group.Do(key, func() (any, error) {
		return c.fetch(ctx, productGroupID, limit)
	})
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.Bool("pagebot.catalog.shared", shared))

	c.logger.DebugContext(ctx, "products loaded", "product_group_id", productGroupID, "shared", shared)

	products := value.([]models.Product)

	return append([]models.Product(nil), products...), nil
}

func (c *Client) fetch(ctx context.Context, productGroupID string, limit int) ([]models.Product, error) {
	var result productsResponse

	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("group", productGroupID).
		SetQueryParam("limit", strconv.Itoa(limit)).
		SetResult(&result).
		Get("/product-groups/{group}/products")
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}

	if resp.IsError() {
		return nil, fmt.Errorf("catalog returned status %d for group %s", resp.StatusCode(), productGroupID)
	}

	if len(result.Products) > limit {
		result.Products = result.Products[:limit]
	}

	return result.Products, nil
}
