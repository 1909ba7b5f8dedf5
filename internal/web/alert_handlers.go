// internal/web/alert_handlers.go
package web

import (
    "net/http"
    "strconv"

    "github.com/gin-gonic/gin"

    "github.com/ychcqshan/terminal-monitor/internal/database"
)

func (s *Server) getAlerts(c *gin.Context) {
    alerts, err := s.engine.Alerts().GetAll(c.Request.Context())
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  alerts,
        "count": len(alerts),
    })
}

func (s *Server) getAlertsByStatus(c *gin.Context) {
    alerts, err := s.engine.Alerts().GetByStatus(c.Request.Context(), c.Param("status"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  alerts,
        "count": len(alerts),
    })
}

func (s *Server) getAlertsByAgent(c *gin.Context) {
    alerts, err := s.engine.Alerts().GetByAgent(c.Request.Context(), c.Param("agentId"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  alerts,
        "count": len(alerts),
    })
}

func (s *Server) getAlertsByAgentAndStatus(c *gin.Context) {
    alerts, err := s.engine.Alerts().GetByAgentAndStatus(c.Request.Context(), c.Param("agentId"), c.Param("status"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  alerts,
        "count": len(alerts),
    })
}

func (s *Server) getRecentAlerts(c *gin.Context) {
    hours := 24
    if raw := c.Query("hours"); raw != "" {
        parsed, err := strconv.Atoi(raw)
        if err != nil {
            c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be an integer"})
            return
        }
        hours = parsed
    }

    alerts, err := s.engine.Alerts().GetRecent(c.Request.Context(), hours)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  alerts,
        "count": len(alerts),
    })
}

func (s *Server) getAlertStats(c *gin.Context) {
    stats, err := s.engine.Alerts().Stats(c.Request.Context())
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": stats})
}

func (s *Server) getAlert(c *gin.Context) {
    alert, err := s.engine.Alerts().Get(c.Request.Context(), c.Param("id"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": alert})
}

type transitionRequest struct {
    Actor  string `json:"actor"`
    Note   string `json:"note"`
    Reason string `json:"reason"`
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
    var req transitionRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    alert, err := s.engine.Alerts().Acknowledge(c.Request.Context(), c.Param("id"), req.Actor)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (s *Server) resolveAlert(c *gin.Context) {
    var req transitionRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    alert, err := s.engine.Alerts().Resolve(c.Request.Context(), c.Param("id"), req.Actor, req.Note)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (s *Server) ignoreAlert(c *gin.Context) {
    var req transitionRequest
    if err := c.ShouldBindJSON(&req); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    alert, err := s.engine.Alerts().Ignore(c.Request.Context(), c.Param("id"), req.Actor, req.Reason)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": alert})
}

func (s *Server) getRules(c *gin.Context) {
    rules, err := s.engine.Rules().GetAllRules(c.Request.Context())
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  rules,
        "count": len(rules),
    })
}

func (s *Server) getEnabledRules(c *gin.Context) {
    rules, err := s.engine.Rules().GetEnabledRules(c.Request.Context())
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  rules,
        "count": len(rules),
    })
}

func (s *Server) getRulesByType(c *gin.Context) {
    rules, err := s.engine.Rules().GetRulesByType(c.Request.Context(), c.Param("type"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{
        "data":  rules,
        "count": len(rules),
    })
}

func (s *Server) createRule(c *gin.Context) {
    var rule database.AlertRule
    if err := c.ShouldBindJSON(&rule); err != nil {
        c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
        return
    }

    created, err := s.engine.Rules().CreateRule(c.Request.Context(), &rule)
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusCreated, gin.H{"data": created})
}

func (s *Server) toggleRule(c *gin.Context) {
    rule, err := s.engine.Rules().ToggleRule(c.Request.Context(), c.Param("id"))
    if err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"data": rule})
}

func (s *Server) deleteRule(c *gin.Context) {
    if err := s.engine.Rules().DeleteRule(c.Request.Context(), c.Param("id")); err != nil {
        respondError(c, err)
        return
    }

    c.JSON(http.StatusOK, gin.H{"message": "rule deleted"})
}
