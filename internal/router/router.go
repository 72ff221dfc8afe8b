package router

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"pos_report/internal/config"
	"pos_report/internal/export"
	"pos_report/internal/logger"
	"pos_report/internal/middleware"
	"pos_report/internal/money"
	"pos_report/internal/sales"
	rediskey "pos_report/pkg/redis"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps 路由依赖。Idempotency / WriteLimiter 可为空。
type Deps struct {
	Engine       *sales.Engine
	Log          *zap.Logger
	Cfg          config.AppConfig
	Idempotency  *rediskey.Idempotency
	WriteLimiter *middleware.RateLimiter
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	write := []gin.HandlerFunc{}
	if d.WriteLimiter != nil {
		write = append(write, d.WriteLimiter.Handler())
	}

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")
	// 商品 / 平台
	api.GET("/products", listProducts(d))
	api.POST("/products", upsertProduct(d))
	api.DELETE("/products/:id", deleteProduct(d))
	api.GET("/platforms", listPlatforms(d))
	api.POST("/platforms", upsertPlatform(d))
	api.DELETE("/platforms/:id", deletePlatform(d))
	// 订单
	api.POST("/orders", append(write, createOrder(d))...)
	api.GET("/orders", listOrders(d))
	api.GET("/orders/:id", getOrder(d))
	api.PATCH("/orders/:id/items/:item_id", append(write, updateItem(d))...)
	// 报表
	api.GET("/summary/today", summary(d, sales.Today))
	api.GET("/summary/week", summary(d, sales.ThisWeek))
	api.GET("/summary", rangeSummary(d))
	api.GET("/export", exportOrders(d))
}

// fail 把引擎错误映射为 HTTP 响应；存储错误只返回通用信息，细节写日志。
func fail(c *gin.Context, d Deps, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, sales.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
	case errors.Is(err, sales.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": err.Error()})
	default:
		d.Log.Error("request failed",
			zap.String("request_id", logger.RequestID(c)),
			zap.String("route", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "storage unavailable"})
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": msg})
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return uint(id), true
}

// listProducts 查询商品列表。
func listProducts(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := d.Engine.ListProducts(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, list)
	}
}

// upsertProduct 登记商品；同名商品更新单价。
func upsertProduct(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name      string       `json:"name" binding:"required"`
			UnitPrice money.Amount `json:"unit_price"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := d.Engine.UpsertProduct(c.Request.Context(), req.Name, req.UnitPrice)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, p)
	}
}

func deleteProduct(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c, "id")
		if !valid {
			return
		}
		if err := d.Engine.DeleteProduct(c.Request.Context(), id); err != nil {
			fail(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "deleted"})
	}
}

func listPlatforms(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := d.Engine.ListPlatforms(c.Request.Context())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, list)
	}
}

func upsertPlatform(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		p, err := d.Engine.UpsertPlatform(c.Request.Context(), req.Name)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, p)
	}
}

func deletePlatform(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c, "id")
		if !valid {
			return
		}
		if err := d.Engine.DeletePlatform(c.Request.Context(), id); err != nil {
			fail(c, d, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "deleted"})
	}
}

// createOrder 录入订单。
// 带 Idempotency-Key 时：
// 1. 抢占幂等键，已完成则直接返回原订单，处理中返回 409
// 2. 创建订单
// 3. 成功记录订单 ID；提交前失败才释放幂等键，允许重试
//    （CreateOrder 提交后不再返回错误）
func createOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sales.CreateOrderInput
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		if idemKey != "" && d.Idempotency != nil {
			state, orderID, err := d.Idempotency.Claim(ctx, idemKey)
			if err != nil {
				// 幂等存储不可用时按普通请求处理
				d.Log.Warn("idempotency claim failed", zap.String("key", idemKey), zap.Error(err))
				idemKey = ""
			} else {
				switch state {
				case rediskey.ClaimDone:
					order, err := d.Engine.GetOrder(ctx, orderID)
					if err != nil {
						fail(c, d, err)
						return
					}
					ok(c, order)
					return
				case rediskey.ClaimInProgress:
					c.JSON(http.StatusConflict, gin.H{"code": 409, "msg": "request with this Idempotency-Key is in progress"})
					return
				}
			}
		} else {
			idemKey = ""
		}

		order, err := d.Engine.CreateOrder(ctx, req)
		if err != nil {
			if idemKey != "" {
				if relErr := d.Idempotency.Release(ctx, idemKey); relErr != nil {
					d.Log.Warn("idempotency release failed", zap.String("key", idemKey), zap.Error(relErr))
				}
			}
			fail(c, d, err)
			return
		}
		if idemKey != "" {
			if err := d.Idempotency.Complete(ctx, idemKey, order.ID); err != nil {
				d.Log.Warn("idempotency complete failed", zap.String("key", idemKey), zap.Error(err))
			}
		}
		ok(c, order)
	}
}

func getOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := parseID(c, "id")
		if !valid {
			return
		}
		order, err := d.Engine.GetOrder(c.Request.Context(), id)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, order)
	}
}

// listOrders 按日期区间返回订单树（不传日期时为当天）。
func listOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := windowFromQuery(c)
		if err != nil {
			fail(c, d, err)
			return
		}
		s, err := d.Engine.Summary(c.Request.Context(), w)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, s.Orders)
	}
}

// updateItem 更正订单项的数量与折扣。
func updateItem(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID, valid := parseID(c, "id")
		if !valid {
			return
		}
		itemID, valid := parseID(c, "item_id")
		if !valid {
			return
		}
		var req struct {
			Quantity int          `json:"quantity" binding:"required,min=1"`
			Discount money.Amount `json:"discount"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		order, err := d.Engine.UpdateItem(c.Request.Context(), orderID, itemID, req.Quantity, req.Discount)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, order)
	}
}

func summary(d Deps, window func() sales.Window) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := d.Engine.Summary(c.Request.Context(), window())
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, s)
	}
}

func rangeSummary(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := windowFromQuery(c)
		if err != nil {
			fail(c, d, err)
			return
		}
		s, err := d.Engine.Summary(c.Request.Context(), w)
		if err != nil {
			fail(c, d, err)
			return
		}
		ok(c, s)
	}
}

// windowFromQuery 解析 ?start=&end= 或 ?window=today|week，缺省为当天。
func windowFromQuery(c *gin.Context) (sales.Window, error) {
	start, end := c.Query("start"), c.Query("end")
	if start != "" || end != "" {
		if start == "" {
			start = end
		}
		if end == "" {
			end = start
		}
		return sales.ParseRange(start, end)
	}
	if name := c.Query("window"); name != "" {
		return sales.ParseWindow(name)
	}
	return sales.Today(), nil
}

// exportOrders 导出订单项，format=xlsx（默认）或 csv。
func exportOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := windowFromQuery(c)
		if err != nil {
			fail(c, d, err)
			return
		}
		format := strings.ToLower(c.DefaultQuery("format", "xlsx"))
		if format != "xlsx" && format != "csv" {
			badRequest(c, "format must be xlsx or csv")
			return
		}

		rows, err := d.Engine.Export(c.Request.Context(), w)
		if err != nil {
			fail(c, d, err)
			return
		}

		loc := d.Engine.Calendar().Location
		var buf bytes.Buffer
		contentType := export.ContentTypeXLSX
		if format == "csv" {
			err = export.WriteCSV(&buf, rows, loc, d.Cfg.ExportCSVEncoding)
			contentType = export.ContentTypeCSV
			if d.Cfg.ExportCSVEncoding == export.EncodingGBK {
				contentType = export.ContentTypeGBK
			}
		} else {
			err = export.WriteXLSX(&buf, rows, loc)
		}
		if err != nil {
			d.Log.Error("export write failed", zap.String("format", format), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": "export failed"})
			return
		}

		label := d.Engine.Calendar().Label(w, d.Engine.Now())
		filename := fmt.Sprintf("orders_%s.%s", label, format)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, contentType, buf.Bytes())
	}
}
