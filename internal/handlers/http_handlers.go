package handlers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/shopspring/decimal"

	"raffle/internal/checked"
	"raffle/internal/escrow"
	"raffle/internal/models"
	"raffle/internal/services"
	"raffle/internal/store"
)

const callerKey = "caller"

// HTTPHandler holds the dependencies for the HTTP handlers.
type HTTPHandler struct {
	service   *services.RaffleService
	bank      *escrow.Bank
	stream    Subscriber
	oracleRef string
	faucet    bool
}

// Options configures an HTTPHandler.
type Options struct {
	// OracleRef is used by draw requests that do not name a feed.
	OracleRef string
	// Faucet enables minting test balances through POST /balances.
	Faucet bool
}

// NewHTTPHandler creates a new HTTPHandler. stream may be nil, in which case
// the websocket endpoint is not available.
func NewHTTPHandler(service *services.RaffleService, bank *escrow.Bank, stream Subscriber, opts Options) *HTTPHandler {
	return &HTTPHandler{
		service:   service,
		bank:      bank,
		stream:    stream,
		oracleRef: opts.OracleRef,
		faucet:    opts.Faucet,
	}
}

// NewRouter builds the engine with every route. Lifecycle routes sit behind
// CallerMiddleware.
func NewRouter(h *HTTPHandler, health *HealthHandler, middleware ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware...)

	health.Register(r)
	h.RegisterPublicRoutes(r)

	callerRoutes := r.Group("/")
	callerRoutes.Use(h.CallerMiddleware())
	h.RegisterCallerRoutes(callerRoutes)
	return r
}

// RegisterPublicRoutes registers the read side, which needs no caller.
func (h *HTTPHandler) RegisterPublicRoutes(router gin.IRouter) {
	router.GET("/raffles", h.ListRaffles)
	router.GET("/raffles/:id", h.GetRaffle)
	router.GET("/raffles/:id/participants.csv", h.ExportParticipantsCSV)
	router.GET("/events", h.ListEvents)
	router.GET("/events/ws", h.StreamEvents)
	router.GET("/balances/:owner", h.GetBalance)
	router.POST("/balances", h.Faucet)
}

// RegisterCallerRoutes registers the lifecycle operations. The group must use
// CallerMiddleware.
func (h *HTTPHandler) RegisterCallerRoutes(group gin.IRouter) {
	group.POST("/counter", h.InitialiseCounter)
	group.POST("/raffles", h.CreateRaffle)
	group.POST("/raffles/:id/tickets", h.BuyTickets)
	group.POST("/raffles/:id/draw", h.DrawWinner)
	group.POST("/raffles/:id/ship", h.MarkShipped)
	group.POST("/raffles/:id/deliver", h.MarkDelivered)
	group.POST("/raffles/:id/release", h.ReleaseFunds)
	group.POST("/raffles/:id/cancel", h.CancelRaffle)
	group.POST("/raffles/:id/refund", h.RefundParticipant)
	group.POST("/raffles/:id/close", h.CloseExpired)
}

// CallerMiddleware identifies the account behind a request from the X-Caller
// header and stores it in the context.
func (h *HTTPHandler) CallerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-Caller")
		if raw == "" {
			Error(c, http.StatusUnauthorized, "X-Caller header required", nil)
			c.Abort()
			return
		}
		caller, err := models.ParseIdentity(raw)
		if err != nil {
			Error(c, http.StatusUnauthorized, err.Error(), nil)
			c.Abort()
			return
		}
		c.Set(callerKey, caller)
		c.Next()
	}
}

func callerFrom(c *gin.Context) models.Identity {
	caller, _ := c.MustGet(callerKey).(models.Identity)
	return caller
}

func raffleID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid raffle id", nil)
		return 0, false
	}
	return id, true
}

// bindOptional decodes a JSON body when one is present.
func bindOptional(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil && !errors.Is(err, io.EOF) {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return false
	}
	return true
}

// tokens renders a scaled amount as a decimal token string.
func tokens(amount uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -6).String()
}

type priceView struct {
	SellingPrice   string `json:"sellingPrice"`
	TicketPrice    string `json:"ticketPrice"`
	TotalCollected string `json:"totalCollected"`
	EscrowBalance  string `json:"escrowBalance"`
}

type raffleView struct {
	*models.Raffle
	Display priceView `json:"display"`
}

func viewOf(r *models.Raffle) raffleView {
	return raffleView{
		Raffle: r,
		Display: priceView{
			SellingPrice:   tokens(r.SellingPrice),
			TicketPrice:    tokens(r.TicketPrice),
			TotalCollected: tokens(r.TotalCollected),
			EscrowBalance:  tokens(r.Escrow.Balance),
		},
	}
}

// InitialiseCounter creates the raffle id counter. It succeeds once.
func (h *HTTPHandler) InitialiseCounter(c *gin.Context) {
	if err := h.service.InitialiseCounter(c.Request.Context()); err != nil {
		Fail(c, err)
		return
	}
	Ok(c, gin.H{"initialised": true}, nil)
}

type createRaffleRequest struct {
	PaymentDenomination string `json:"paymentDenomination"`
	ItemName            string `json:"itemName"`
	ItemDescription     string `json:"itemDescription"`
	ItemImageRef        string `json:"itemImageRef"`
	SellingPrice        uint64 `json:"sellingPrice"`
	TicketPrice         uint64 `json:"ticketPrice"`
	MinTickets          uint32 `json:"minTickets"`
	MaxTickets          uint32 `json:"maxTickets"`
	Deadline            int64  `json:"deadline"`
}

// CreateRaffle opens a raffle for the calling seller. Prices are whole tokens.
func (h *HTTPHandler) CreateRaffle(c *gin.Context) {
	var req createRaffleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	r, err := h.service.CreateRaffle(c.Request.Context(), services.CreateRaffleInput{
		Seller:              callerFrom(c),
		PaymentDenomination: models.Identity(req.PaymentDenomination),
		ItemName:            req.ItemName,
		ItemDescription:     req.ItemDescription,
		ItemImageRef:        req.ItemImageRef,
		SellingPrice:        req.SellingPrice,
		TicketPrice:         req.TicketPrice,
		MinTickets:          req.MinTickets,
		MaxTickets:          req.MaxTickets,
		Deadline:            req.Deadline,
	})
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, viewOf(r), nil)
}

// ListRaffles supports ?status=, ?limit= and ?offset=.
func (h *HTTPHandler) ListRaffles(c *gin.Context) {
	var params store.ListParams
	if s := c.Query("status"); s != "" {
		status, err := models.ParseRaffleStatus(s)
		if err != nil {
			Error(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
		params.Status = &status
	}
	var err error
	if params.Limit, err = queryInt(c, "limit", 50); err != nil {
		Error(c, http.StatusBadRequest, "invalid limit", nil)
		return
	}
	if params.Offset, err = queryInt(c, "offset", 0); err != nil {
		Error(c, http.StatusBadRequest, "invalid offset", nil)
		return
	}

	raffles, err := h.service.ListRaffles(c.Request.Context(), params)
	if err != nil {
		Fail(c, err)
		return
	}
	views := make([]raffleView, 0, len(raffles))
	for _, r := range raffles {
		views = append(views, viewOf(r))
	}
	Ok(c, views, map[string]any{"limit": params.Limit, "offset": params.Offset, "count": len(views)})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	s := c.Query(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return v, nil
}

// GetRaffle returns one raffle with display prices.
func (h *HTTPHandler) GetRaffle(c *gin.Context) {
	id, ok := raffleID(c)
	if !ok {
		return
	}
	r, err := h.service.GetRaffle(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, viewOf(r), nil)
}

type buyTicketsRequest struct {
	NumTickets uint8 `json:"numTickets"`
}

// BuyTickets buys tickets for the caller.
func (h *HTTPHandler) BuyTickets(c *gin.Context) {
	id, ok := raffleID(c)
	if !ok {
		return
	}
	var req buyTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	r, err := h.service.BuyTickets(c.Request.Context(), id, callerFrom(c), req.NumTickets)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, viewOf(r), nil)
}

type drawRequest struct {
	OracleRef string `json:"oracleRef"`
}

// DrawWinner lets any caller act as keeper. The feed defaults to the
// configured one.
func (h *HTTPHandler) DrawWinner(c *gin.Context) {
	id, ok := raffleID(c)
	if !ok {
		return
	}
	var req drawRequest
	if !bindOptional(c, &req) {
		return
	}
	ref := req.OracleRef
	if ref == "" {
		ref = h.oracleRef
	}
	r, err := h.service.DrawWinner(c.Request.Context(), id, ref, callerFrom(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, viewOf(r), nil)
}

type trackingRequest struct {
	TrackingInfo *string `json:"trackingInfo"`
}

// MarkShipped records shipment by the calling seller. The body may carry
// trackingInfo.
func (h *HTTPHandler) MarkShipped(c *gin.Context) {
	id, ok := raffleID(c)
	if !ok {
		return
	}
	var req trackingRequest
	if !bindOptional(c, &req) {
		return
	}
	r, err := h.service.MarkShipped(c.Request.Context(), id, callerFrom(c), req.TrackingInfo)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, viewOf(r), nil)
}

// MarkDelivered confirms delivery by the winner or a configured confirmer.
// The body may carry updated trackingInfo.
func (h *HTTPHandler) MarkDelivered(c *gin.Context) {
	id, ok := raffleID(c)
	if !ok {
		return
	}
	var req trackingRequest
	if !bindOptional(c, &req) {
		return
	}
	r, err := h.service.MarkDelivered(c.Request.Context(), id, callerFrom(c), req.TrackingInfo)
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, viewOf(r), nil)
}

// lifecycle adapts the id-and-caller operations to a handler.
func (h *HTTPHandler) lifecycle(c *gin.Context, op func(id uint64, caller models.Identity) (*models.Raffle, error)) {
	id, ok := raffleID(c)
	if !ok {
		return
	}
	r, err := op(id, callerFrom(c))
	if err != nil {
		Fail(c, err)
		return
	}
	Ok(c, viewOf(r), nil)
}

// ReleaseFunds pays the escrow out to the seller after delivery.
func (h *HTTPHandler) ReleaseFunds(c *gin.Context) {
	h.lifecycle(c, func(id uint64, caller models.Identity) (*models.Raffle, error) {
		return h.service.ReleaseFunds(c.Request.Context(), id, caller)
	})
}

// CancelRaffle cancels an expired raffle that missed its minimum.
func (h *HTTPHandler) CancelRaffle(c *gin.Context) {
	h.lifecycle(c, func(id uint64, caller models.Identity) (*models.Raffle, error) {
		return h.service.CancelRaffle(c.Request.Context(), id, caller)
	})
}

// RefundParticipant returns the caller's contribution from a cancelled raffle.
func (h *HTTPHandler) RefundParticipant(c *gin.Context) {
	h.lifecycle(c, func(id uint64, caller models.Identity) (*models.Raffle, error) {
		return h.service.RefundParticipant(c.Request.Context(), id, caller)
	})
}

// CloseExpired ends an expired raffle nobody entered.
func (h *HTTPHandler) CloseExpired(c *gin.Context) {
	h.lifecycle(c, func(id uint64, _ models.Identity) (*models.Raffle, error) {
		return h.service.CloseExpired(c.Request.Context(), id)
	})
}

// ExportParticipantsCSV handles the request to download a raffle's participant
// slots and escrowed contributions as a CSV file.
func (h *HTTPHandler) ExportParticipantsCSV(c *gin.Context) {
	id, ok := raffleID(c)
	if !ok {
		return
	}
	r, err := h.service.GetRaffle(c.Request.Context(), id)
	if err != nil {
		Fail(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=raffle_%d_participants.csv", id))

	// BOM for Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"slot", "participant", "contribution", "winner"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
		return
	}
	for i, p := range r.Participants {
		winner := r.Winner != nil && *r.Winner == p
		row := []string{
			strconv.Itoa(i),
			p.String(),
			tokens(r.Escrow.Contribution(p.String())),
			strconv.FormatBool(winner),
		}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			c.String(http.StatusInternalServerError, "Error writing CSV")
			return
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}

// GetBalance reports a bank balance. ?denom= selects the payment token.
func (h *HTTPHandler) GetBalance(c *gin.Context) {
	owner := c.Param("owner")
	denom := c.Query("denom")
	if denom == "" {
		Error(c, http.StatusBadRequest, "denom required", nil)
		return
	}
	amount := h.bank.Balance(owner, denom)
	Ok(c, gin.H{
		"owner":        owner,
		"denomination": denom,
		"amount":       amount,
		"display":      tokens(amount),
	}, nil)
}

type faucetRequest struct {
	Owner        string `json:"owner" binding:"required"`
	Denomination string `json:"denomination" binding:"required"`
	// Amount is in whole tokens.
	Amount uint64 `json:"amount" binding:"required"`
}

// Faucet mints whole tokens into an account when enabled.
func (h *HTTPHandler) Faucet(c *gin.Context) {
	if !h.faucet {
		Error(c, http.StatusForbidden, "faucet disabled", nil)
		return
	}
	var req faucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	owner, err := models.ParseIdentity(req.Owner)
	if err != nil {
		Fail(c, err)
		return
	}
	scaled, err := checked.Mul(req.Amount, models.PriceScale)
	if err != nil {
		Fail(c, err)
		return
	}
	if err := h.bank.Mint(owner.String(), req.Denomination, scaled); err != nil {
		Fail(c, err)
		return
	}
	logger.Infof("faucet: minted %s %s to %s", tokens(scaled), req.Denomination, owner)
	Ok(c, gin.H{
		"owner":        owner,
		"denomination": req.Denomination,
		"amount":       h.bank.Balance(owner.String(), req.Denomination),
	}, nil)
}
