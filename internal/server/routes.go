package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/danmuck/armlink/internal/robot"
	"github.com/danmuck/armlink/internal/statelog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type stateView struct {
	MessageID                 uint64      `json:"message_id"`
	TimeMS                    int64       `json:"time_ms"`
	RobotMode                 string      `json:"robot_mode"`
	MotionGeneratorMode       string      `json:"motion_generator_mode"`
	ControllerMode            string      `json:"controller_mode"`
	Q                         [7]float64  `json:"q"`
	DQ                        [7]float64  `json:"dq"`
	TauJ                      [7]float64  `json:"tau_j"`
	OTEE                      [16]float64 `json:"o_t_ee"`
	CurrentErrors             []string    `json:"current_errors"`
	LastMotionErrors          []string    `json:"last_motion_errors"`
	ControlCommandSuccessRate float64     `json:"control_command_success_rate"`
}

func viewState(st robot.State) stateView {
	return stateView{
		MessageID:                 st.MessageID,
		TimeMS:                    st.Time.Milliseconds(),
		RobotMode:                 st.RobotMode.String(),
		MotionGeneratorMode:       st.MotionGeneratorMode.String(),
		ControllerMode:            st.ControllerMode.String(),
		Q:                         st.Q,
		DQ:                        st.DQ,
		TauJ:                      st.TauJ,
		OTEE:                      st.OTEE,
		CurrentErrors:             st.CurrentErrors.Names(),
		LastMotionErrors:          st.LastMotionErrors.Names(),
		ControlCommandSuccessRate: st.ControlCommandSuccessRate,
	}
}

type recordView struct {
	State      stateView `json:"state"`
	HasCommand bool      `json:"has_command"`
	HasMotion  bool      `json:"has_motion,omitempty"`
	HasControl bool      `json:"has_control,omitempty"`
	Finished   bool      `json:"motion_generation_finished,omitempty"`
}

func viewRecord(rec statelog.Record) recordView {
	out := recordView{State: viewState(rec.State)}
	if rec.Command != nil {
		out.HasCommand = true
		out.HasMotion = rec.Command.HasMotion
		out.HasControl = rec.Command.HasControl
		out.Finished = rec.Command.HasMotion && rec.Command.Motion.MotionGenerationFinished
	}
	return out
}

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).String(),
			"service": s.cfg.Name,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := s.source.Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": err.Error()})
			return
		}
		if _, ok := s.source.LastState(); !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false, "error": "no state received"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ready": true, "uptime": time.Since(s.appeared).String()})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/version", func(c *gin.Context) {
		rt := s.source.RealtimeConfig()
		c.JSON(http.StatusOK, gin.H{
			"server_version":    s.source.ServerVersion(),
			"realtime_policy":   rt.Policy.String(),
			"max_missed_cycles": rt.MaxMissedCycles,
		})
	})

	r.GET("/state", func(c *gin.Context) {
		st, ok := s.source.LastState()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no state received"})
			return
		}
		c.JSON(http.StatusOK, viewState(st))
	})

	r.GET("/motion", func(c *gin.Context) {
		m, ok := s.source.Motion()
		if !ok {
			c.JSON(http.StatusOK, gin.H{"active": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"active":          true,
			"motion_id":       m.MotionID,
			"state":           m.State.String(),
			"generator_mode":  m.GeneratorMode.String(),
			"controller_mode": m.ControllerMode.String(),
		})
	})

	r.GET("/statelog", func(c *gin.Context) {
		if s.history == nil || s.history.Cap() == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "state log disabled"})
			return
		}
		records := s.history.Records()
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
				return
			}
			if n < len(records) {
				records = records[len(records)-n:]
			}
		}
		out := make([]recordView, 0, len(records))
		for _, rec := range records {
			out = append(out, viewRecord(rec))
		}
		c.JSON(http.StatusOK, gin.H{"capacity": s.history.Cap(), "records": out})
	})
}
