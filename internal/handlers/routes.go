package handlers

import "github.com/labstack/echo/v4"

// Router groups the v1 API handlers
type Router struct {
	Allocations *AllocationHandlers
	Instances   *InstanceHandlers
	SKUs        *SKUHandlers
	Audit       *AuditLogsHandlers
}

// Register mounts the v1 routes on g
func (r *Router) Register(g *echo.Group) {
	g.POST("/allocations", r.Allocations.CreateAllocation)
	g.GET("/allocations/:id", r.Allocations.GetAllocation)
	g.POST("/allocations/:id/cancel", r.Allocations.CancelAllocation)
	g.POST("/allocations/:id/fulfill", r.Allocations.FulfillAllocation)
	g.POST("/allocations/:id/returns", r.Allocations.ReturnInstances)
	g.POST("/allocations/:id/consumptions", r.Allocations.ConsumeInstances)

	g.GET("/instances/:id", r.Instances.GetInstance)
	g.POST("/instances/:id/condition", r.Instances.ChangeCondition)

	g.POST("/skus/:id/instances", r.Instances.ReceiveInstances)
	g.POST("/skus/:id/instances/decrease", r.Instances.DecreaseInstances)
	g.GET("/skus/:id/availability", r.SKUs.GetAvailability)
	g.GET("/skus/:id/summary", r.SKUs.GetSummary)

	if r.Audit != nil {
		g.GET("/audit/:entity_type/:entity_id", r.Audit.GetEntityHistory)
	}
}
