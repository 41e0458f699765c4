// README: Auction handlers; registration, bidding, selection and the start code check.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ridebid/internal/modules/auction"
	"ridebid/internal/types"
)

type AuctionHandler struct {
	auction *auction.Service
}

func NewAuctionHandler(svc *auction.Service) *AuctionHandler {
	return &AuctionHandler{auction: svc}
}

type registerReq struct {
	AuctionID string       `json:"auction_id"`
	Meta      auction.Meta `json:"meta"`
}

type bidReq struct {
	DriverID   string          `json:"driver_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	DriverMeta auction.Meta    `json:"driver_meta"`
}

type acceptReq struct {
	BidID string `json:"bid_id"`
}

type verifyReq struct {
	Code string `json:"code"`
}

type statusResp struct {
	AuctionID          types.ID      `json:"auction_id"`
	Phase              auction.Phase `json:"phase"`
	BiddingSecondsLeft float64       `json:"bidding_seconds_left"`
	SelectSecondsLeft  float64       `json:"selection_seconds_left"`
	BidCount           int           `json:"bid_count"`
}

func (h *AuctionHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.AuctionID != "" && !isValidID(req.AuctionID) {
		writeError(c, http.StatusBadRequest, "invalid auction id")
		return
	}
	a, err := h.auction.RegisterAuction(c.Request.Context(), types.ID(req.AuctionID), req.Meta)
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, a)
}

func (h *AuctionHandler) ListOpen(c *gin.Context) {
	open, err := h.auction.ListOpenAuctions(c.Request.Context())
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"auctions": open})
}

func (h *AuctionHandler) Get(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	a, err := h.auction.GetAuction(c.Request.Context(), id)
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, a)
}

func (h *AuctionHandler) Status(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	st, err := h.auction.GetAuctionStatus(c.Request.Context(), id)
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, statusResp{
		AuctionID:          st.AuctionID,
		Phase:              st.Phase,
		BiddingSecondsLeft: st.BiddingTimeLeft.Seconds(),
		SelectSecondsLeft:  st.SelectionTimeLeft.Seconds(),
		BidCount:           st.BidCount,
	})
}

// SubmitBid answers 200 with accepted=false for late bids; lateness is an
// outcome, not a failure.
func (h *AuctionHandler) SubmitBid(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	var req bidReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if !isValidID(req.DriverID) {
		writeError(c, http.StatusBadRequest, "missing driver_id")
		return
	}
	bid, accepted, err := h.auction.SubmitBid(c.Request.Context(), id, auction.BidInput{
		DriverID:   types.ID(req.DriverID),
		Amount:     types.NewMoney(req.Amount, req.Currency),
		DriverMeta: req.DriverMeta,
	})
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	if !accepted {
		writeJSON(c, http.StatusOK, map[string]any{"accepted": false})
		return
	}
	writeJSON(c, http.StatusCreated, map[string]any{"accepted": true, "bid": bid})
}

func (h *AuctionHandler) ListBids(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	bids, err := h.auction.GetValidBids(c.Request.Context(), id)
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"bids": bids})
}

func (h *AuctionHandler) Accept(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	var req acceptReq
	if err := c.ShouldBindJSON(&req); err != nil || req.BidID == "" {
		writeError(c, http.StatusBadRequest, "missing bid_id")
		return
	}
	conf, err := h.auction.AcceptBid(c.Request.Context(), id, types.ID(req.BidID))
	if err != nil {
		writeAuctionError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"auction": conf.Auction, "start_code": conf.Code})
}

func (h *AuctionHandler) Verify(c *gin.Context) {
	id, ok := auctionID(c)
	if !ok {
		return
	}
	var req verifyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if _, err := h.auction.VerifyStartCode(c.Request.Context(), id, req.Code); err != nil {
		writeCodeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, map[string]any{"verified": true})
}

func auctionID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid auction id")
		return "", false
	}
	return types.ID(id), true
}
