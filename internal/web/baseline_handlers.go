// internal/web/baseline_handlers.go
package web

import (
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

func (s *Server) getBaselines(c *gin.Context) {
    baselines, err := s.store.GetBaselines(c.Request.Context(), c.Param("agentId"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  baselines,
        "count": len(baselines),
    })
}

func (s *Server) getBaseline(c *gin.Context) {
    baseline, err := s.store.GetBaseline(c.Request.Context(), c.Param("agentId"), c.Param("type"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": baseline})
}

func (s *Server) getBaselineItems(c *gin.Context) {
    baseline, err := s.store.GetBaseline(c.Request.Context(), c.Param("agentId"), c.Param("type"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  baseline.Items,
        "count": len(baseline.Items),
    })
}

func (s *Server) getSnapshots(c *gin.Context) {
    limit := 20
    if raw := c.Query("limit"); raw != "" {
        parsed, err := strconv.Atoi(raw)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
            return
        }
        limit = parsed
    }

    snaps, err := s.store.GetSnapshots(c.Request.Context(), c.Param("agentId"), c.Param("type"), limit)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  snaps,
        "count": len(snaps),
    })
}

func (s *Server) compareBaseline(c *gin.Context) {
    result, err := s.engine.Compare(c.Request.Context(), c.Param("agentId"), c.Param("type"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) startQuickLearn(c *gin.Context) {
    session, err := s.engine.StartLearning(c.Request.Context(), c.Param("agentId"), c.Param("type"), database.ModeQuick, 0)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": session})
}

func (s *Server) startStandardLearn(c *gin.Context) {
    session, err := s.engine.StartLearning(c.Request.Context(), c.Param("agentId"), c.Param("type"), database.ModeStandard, 0)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": session})
}

func (s *Server) startCustomLearn(c *gin.Context) {
    var req struct {
        Days int `json:"days"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    session, err := s.engine.StartLearning(c.Request.Context(), c.Param("agentId"), c.Param("type"), database.ModeCustom, req.Days)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": session})
}

func (s *Server) importBaseline(c *gin.Context) {
    baseline, err := s.engine.ImportFromCurrent(c.Request.Context(), c.Param("agentId"), c.Param("type"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": baseline})
}

func (s *Server) copyBaseline(c *gin.Context) {
    var req struct {
        SourceAgentID string `json:"sourceAgentId"`
    }
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    baseline, err := s.engine.CopyFromAgent(c.Request.Context(), c.Param("agentId"), c.Param("type"), req.SourceAgentID)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": baseline})
}

func (s *Server) createManualBaseline(c *gin.Context) {
    var items []map[string]string
    if err := c.ShouldBindJSON(&items); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    baseline, err := s.engine.ManualCreate(c.Request.Context(), c.Param("agentId"), c.Param("type"), items)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": baseline})
}

func (s *Server) completeLearn(c *gin.Context) {
    result, err := s.engine.CompleteLearning(c.Request.Context(), c.Param("agentId"), c.Param("type"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":           result,
        "empty_baseline": result.Empty,
    })
}

func (s *Server) cancelLearn(c *gin.Context) {
    session, err := s.engine.CancelLearning(c.Request.Context(), c.Param("agentId"), c.Param("type"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": session})
}

func (s *Server) deleteBaseline(c *gin.Context) {
    if err := s.engine.DeleteBaseline(c.Request.Context(), c.Param("agentId"), c.Param("type")); err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"message": "baseline deleted"})
}
