// Package api exposes a query-only HTTP surface over the chain state.
// It never mutates state, all writes go through extrinsic dispatch.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/emberchain/ember/internal/bridge"
	"github.com/emberchain/ember/internal/nft"
	"github.com/emberchain/ember/internal/primitives"
)

type Server struct {
	nft    *nft.Module
	bridge *bridge.Module
	router *mux.Router
	log    zerolog.Logger
}

func NewServer(nftMod *nft.Module, bridgeMod *bridge.Module, logger zerolog.Logger) *Server {
	s := &Server{
		nft:    nftMod,
		bridge: bridgeMod,
		router: mux.NewRouter(),
		log:    logger,
	}
	s.router.HandleFunc("/nft/collections/{id:[0-9]+}", s.getCollection).Methods(http.MethodGet)
	s.router.HandleFunc("/nft/collections/{id:[0-9]+}/tokens/{account}", s.getCollectedTokens).Methods(http.MethodGet)
	s.router.HandleFunc("/nft/collections/{id:[0-9]+}/listings", s.getCollectionListings).Methods(http.MethodGet)
	s.router.HandleFunc("/nft/tokens/{collection:[0-9]+}/{series:[0-9]+}/{serial:[0-9]+}", s.getToken).Methods(http.MethodGet)
	s.router.HandleFunc("/bridge/status", s.getBridgeStatus).Methods(http.MethodGet)
	return s
}

func (s *Server) Router() http.Handler {
	return s.router
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("encoding response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func pathUint32(r *http.Request, name string) (uint32, bool) {
	n, err := strconv.ParseUint(mux.Vars(r)[name], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

type collectionResponse struct {
	Name      string            `json:"name"`
	Owner     string            `json:"owner"`
	Royalties []royaltyResponse `json:"royalties,omitempty"`
}

type royaltyResponse struct {
	Beneficiary string `json:"beneficiary"`
	Fraction    uint32 `json:"fraction"`
}

func royaltyResponses(entitlements []nft.Entitlement) []royaltyResponse {
	out := make([]royaltyResponse, 0, len(entitlements))
	for _, e := range entitlements {
		out = append(out, royaltyResponse{
			Beneficiary: e.Beneficiary.Hex(),
			Fraction:    uint32(e.Fraction),
		})
	}
	return out
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint32(r, "id")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid collection id")
		return
	}
	info, err := s.nft.GetCollectionInfo(primitives.CollectionID(id))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if info == nil {
		s.writeError(w, http.StatusNotFound, "no such collection")
		return
	}
	s.writeJSON(w, http.StatusOK, collectionResponse{
		Name:      string(info.Name),
		Owner:     info.Owner.Hex(),
		Royalties: royaltyResponses(info.Royalties),
	})
}

type tokenIDResponse struct {
	Collection uint32 `json:"collection"`
	Series     uint32 `json:"series"`
	Serial     uint32 `json:"serial"`
}

func (s *Server) getCollectedTokens(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint32(r, "id")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid collection id")
		return
	}
	account := mux.Vars(r)["account"]
	var who primitives.AccountID
	if err := who.UnmarshalText([]byte(account)); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account")
		return
	}
	tokens, err := s.nft.CollectedTokens(primitives.CollectionID(id), who)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]tokenIDResponse, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, tokenIDResponse{
			Collection: uint32(t.Collection),
			Series:     uint32(t.Series),
			Serial:     uint32(t.Serial),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

type tokenResponse struct {
	Owner     string            `json:"owner"`
	Royalties []royaltyResponse `json:"royalties,omitempty"`
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	collection, ok1 := pathUint32(r, "collection")
	series, ok2 := pathUint32(r, "series")
	serial, ok3 := pathUint32(r, "serial")
	if !ok1 || !ok2 || !ok3 {
		s.writeError(w, http.StatusBadRequest, "invalid token id")
		return
	}
	info, err := s.nft.GetTokenInfo(primitives.TokenID{
		Collection: primitives.CollectionID(collection),
		Series:     primitives.SeriesID(series),
		Serial:     primitives.SerialNumber(serial),
	})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if info == nil {
		s.writeError(w, http.StatusNotFound, "no such token")
		return
	}
	s.writeJSON(w, http.StatusOK, tokenResponse{
		Owner:     info.Owner.Hex(),
		Royalties: royaltyResponses(info.Royalties),
	})
}

type listingResponse struct {
	ID     uint64            `json:"id"`
	Type   string            `json:"type"`
	Seller string            `json:"seller"`
	Close  uint64            `json:"close"`
	Asset  uint32            `json:"asset"`
	Price  uint64            `json:"price"`
	Tokens []tokenIDResponse `json:"tokens"`
}

type listingsResponse struct {
	NextCursor *uint64           `json:"next_cursor"`
	Listings   []listingResponse `json:"listings"`
}

func (s *Server) getCollectionListings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint32(r, "id")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid collection id")
		return
	}
	query := r.URL.Query()
	var offset uint64
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = n
	}
	limit := nft.MaxListingsPerPage
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 16)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = uint16(n)
	}

	next, page, err := s.nft.CollectionListings(primitives.CollectionID(id), offset, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	listings := make([]listingResponse, 0, len(page))
	for _, pair := range page {
		listings = append(listings, toListingResponse(pair))
	}
	s.writeJSON(w, http.StatusOK, listingsResponse{NextCursor: next, Listings: listings})
}

func toListingResponse(pair nft.ListedPair) listingResponse {
	resp := listingResponse{
		ID:     uint64(pair.ID),
		Seller: pair.Listing.Seller().Hex(),
		Close:  uint64(pair.Listing.CloseBlock()),
	}
	for _, t := range pair.Listing.ListedTokens() {
		resp.Tokens = append(resp.Tokens, tokenIDResponse{
			Collection: uint32(t.Collection),
			Series:     uint32(t.Series),
			Serial:     uint32(t.Serial),
		})
	}
	switch l := pair.Listing.(type) {
	case nft.FixedPriceListing:
		resp.Type = "fixed_price"
		resp.Asset = uint32(l.PaymentAsset)
		resp.Price = uint64(l.FixedPrice)
	case nft.AuctionListing:
		resp.Type = "auction"
		resp.Asset = uint32(l.PaymentAsset)
		resp.Price = uint64(l.ReservePrice)
	}
	return resp
}

type bridgeStatusResponse struct {
	NotarySetID   uint64 `json:"notary_set_id"`
	Paused        bool   `json:"paused"`
	PendingClaims int    `json:"pending_claims"`
}

func (s *Server) getBridgeStatus(w http.ResponseWriter, _ *http.Request) {
	setID, err := s.bridge.Store().NotarySetID()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	paused, err := s.bridge.Store().IsPaused()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	pending, err := s.bridge.PendingClaimCount()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, bridgeStatusResponse{
		NotarySetID:   setID,
		Paused:        paused,
		PendingClaims: pending,
	})
}
