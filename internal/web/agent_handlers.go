// internal/web/agent_handlers.go
package web

import (
    "net/http"

    "github.com/gin-gonic/gin"

    "github.com/ychcqshan/terminal-monitor/internal/database"
    "github.com/ychcqshan/terminal-monitor/internal/engine"
)

func (s *Server) getAgents(c *gin.Context) {
    filters := database.AgentFilters{
        IncludeDeleted: c.Query("include_deleted") == "true",
    }

    agents, err := s.store.GetAgents(c.Request.Context(), filters)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  agents,
        "count": len(agents),
    })
}

func (s *Server) getAgent(c *gin.Context) {
    agent, err := s.store.GetAgent(c.Request.Context(), c.Param("id"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": agent})
}

func (s *Server) deleteAgent(c *gin.Context) {
    if err := s.store.DeleteAgent(c.Request.Context(), c.Param("id")); err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"message": "agent deleted"})
}

// submitReport queues an observation report for the worker pool. The
// report is accepted, not yet processed, when this returns.
func (s *Server) submitReport(c *gin.Context) {
    var report engine.Report
    if err := c.ShouldBindJSON(&report); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }
    report.AgentID = c.Param("id")

    if err := s.engine.Submit(&report); err != nil {
        c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report queue full, retry later"})
        return
    }

    c.JSON(http.StatusAccepted, gin.H{"message": "report queued"})
}
