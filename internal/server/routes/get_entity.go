package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/cleargate-io/cleargate/internal/server/middleware"
	"github.com/cleargate-io/cleargate/pkg/common"
	"github.com/cleargate-io/cleargate/pkg/logger"
	"github.com/cleargate-io/cleargate/pkg/store"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// GetEntityHandler returns an entity profile with its direct owners and
// direct holdings.
func GetEntityHandler(c echo.Context) error {
	type getEntityParams struct {
		ID string `param:"id" validate:"required"`
	}

	type relation struct {
		Entity common.Entity `json:"entity"`
		Edge   common.Edge   `json:"edge"`
	}

	type getEntityResponse struct {
		Entity   common.Entity          `json:"entity"`
		Owners   []relation             `json:"owners"`
		Holdings []relation             `json:"holdings"`
		Events   []common.TimelineEvent `json:"events"`
	}

	params := new(getEntityParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	ctx := c.Request().Context()
	st := c.(*middleware.AppContext).App.Store

	ent, err := st.GetEntity(ctx, params.ID)
	if errors.Is(err, store.ErrEntityNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Entity not found"})
	}
	if err != nil {
		logger.Error("Failed to get entity", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	owners, err := st.Neighbors(ctx, params.ID, nil, store.Incoming)
	if err != nil {
		logger.Error("Failed to get owners", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	holdings, err := st.Neighbors(ctx, params.ID, nil, store.Outgoing)
	if err != nil {
		logger.Error("Failed to get holdings", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	events, err := st.Events(ctx, params.ID)
	if err != nil {
		logger.Error("Failed to get events", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	if events == nil {
		events = []common.TimelineEvent{}
	}

	resp := getEntityResponse{
		Entity:   ent,
		Owners:   make([]relation, 0, len(owners)),
		Holdings: make([]relation, 0, len(holdings)),
		Events:   events,
	}
	for _, nb := range owners {
		resp.Owners = append(resp.Owners, relation{Entity: nb.Entity, Edge: nb.Edge})
	}
	for _, nb := range holdings {
		resp.Holdings = append(resp.Holdings, relation{Entity: nb.Entity, Edge: nb.Edge})
	}

	return c.JSON(http.StatusOK, resp)
}

// GetEntityNetworkHandler returns the subgraph around an entity up to the
// requested hop distance, in both directions.
func GetEntityNetworkHandler(c echo.Context) error {
	type networkParams struct {
		ID    string `param:"id" validate:"required"`
		Depth int    `query:"depth" validate:"omitempty,min=1,max=4"`
	}

	type networkResponse struct {
		Center string          `json:"center"`
		Nodes  []common.Entity `json:"nodes"`
		Links  []common.Edge   `json:"links"`
	}

	params := new(networkParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if params.Depth == 0 {
		params.Depth = 2
	}

	ctx := c.Request().Context()
	st := c.(*middleware.AppContext).App.Store

	center, err := st.GetEntity(ctx, params.ID)
	if errors.Is(err, store.ErrEntityNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Entity not found"})
	}
	if err != nil {
		logger.Error("Failed to get entity", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	nodes := map[string]common.Entity{center.ID: center}
	links := map[string]common.Edge{}

	frontier := []string{center.ID}
	for hop := 0; hop < params.Depth; hop++ {
		var next []string
		for _, id := range frontier {
			for _, dir := range []store.Direction{store.Incoming, store.Outgoing} {
				neighbors, err := st.Neighbors(ctx, id, nil, dir)
				if err != nil {
					logger.Error("Failed to expand network", "id", id, "err", err)
					return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
				}
				for _, nb := range neighbors {
					links[nb.Edge.ID] = nb.Edge
					if _, seen := nodes[nb.Entity.ID]; !seen {
						nodes[nb.Entity.ID] = nb.Entity
						next = append(next, nb.Entity.ID)
					}
				}
			}
		}
		frontier = next
	}

	resp := networkResponse{
		Center: center.ID,
		Nodes:  make([]common.Entity, 0, len(nodes)),
		Links:  make([]common.Edge, 0, len(links)),
	}
	for _, n := range nodes {
		resp.Nodes = append(resp.Nodes, n)
	}
	for _, l := range links {
		resp.Links = append(resp.Links, l)
	}

	return c.JSON(http.StatusOK, resp)
}

// GetEntityOwnershipHandler returns the ownership tree of an entity: owners
// above it (direction=up, the default) or holdings below it (direction=down).
func GetEntityOwnershipHandler(c echo.Context) error {
	type ownershipParams struct {
		ID        string `param:"id" validate:"required"`
		Direction string `query:"direction" validate:"omitempty,oneof=up down"`
		Depth     int    `query:"depth" validate:"omitempty,min=1,max=10"`
	}

	type ownershipResponse struct {
		Direction string        `json:"direction"`
		Root      OwnershipNode `json:"root"`
	}

	params := new(ownershipParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if params.Direction == "" {
		params.Direction = "up"
	}
	if params.Depth == 0 {
		params.Depth = 5
	}

	dir := store.Incoming
	if params.Direction == "down" {
		dir = store.Outgoing
	}

	ctx := c.Request().Context()
	st := c.(*middleware.AppContext).App.Store

	root, err := buildOwnershipTree(ctx, st, params.ID, dir, params.Depth, map[string]struct{}{})
	if errors.Is(err, store.ErrEntityNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Entity not found"})
	}
	if err != nil {
		logger.Error("Failed to build ownership tree", "id", params.ID, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, ownershipResponse{Direction: params.Direction, Root: root})
}

// OwnershipNode is one level of the ownership tree. Children are owners for an
// upward tree and holdings for a downward one.
type OwnershipNode struct {
	Entity     common.Entity   `json:"entity"`
	Percentage *float64        `json:"percentage,omitempty"`
	EdgeType   common.EdgeType `json:"edge_type,omitempty"`
	Children   []OwnershipNode `json:"children,omitempty"`
}

func buildOwnershipTree(ctx context.Context, st store.GraphReader, id string, dir store.Direction, depth int, onPath map[string]struct{}) (OwnershipNode, error) {
	ent, err := st.GetEntity(ctx, id)
	if err != nil {
		return OwnershipNode{}, err
	}

	node := OwnershipNode{Entity: ent}
	if depth == 0 {
		return node, nil
	}

	onPath[id] = struct{}{}
	defer delete(onPath, id)

	neighbors, err := st.Neighbors(ctx, id, []common.EdgeType{common.EdgeOwns, common.EdgeControls}, dir)
	if err != nil {
		return OwnershipNode{}, err
	}

	for _, nb := range neighbors {
		// Ownership cycles terminate at the repeated entity.
		if _, cyc := onPath[nb.Entity.ID]; cyc {
			continue
		}
		child, err := buildOwnershipTree(ctx, st, nb.Entity.ID, dir, depth-1, onPath)
		if err != nil {
			return OwnershipNode{}, err
		}
		child.Percentage = nb.Edge.Percentage
		child.EdgeType = nb.Edge.Type
		node.Children = append(node.Children, child)
	}

	return node, nil
}
