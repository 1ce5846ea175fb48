package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// handleHealth reports process liveness plus database integrity. Returns 503
// when the database is unreachable so load balancers can act on it.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbHealthy := s.db.QuickCheck(r.Context()) == nil

	status := http.StatusOK
	state := "ok"
	if !dbHealthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":         state,
		"database":       dbHealthy,
		"uptime_seconds": int(time.Since(s.startupTime).Seconds()),
	})
}

// handleWatchdogStatus returns the latest persisted watchdog status
func (s *Server) handleWatchdogStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.status.Load()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load watchdog status")
		s.writeError(w, http.StatusInternalServerError, "failed to load watchdog status")
		return
	}
	if status == nil {
		s.writeError(w, http.StatusNotFound, "no watchdog check has run yet")
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

// handleAccounts returns all account snapshots
func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	all, err := s.accounts.GetAll()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load accounts")
		s.writeError(w, http.StatusInternalServerError, "failed to load accounts")
		return
	}

	count, err := s.accounts.CountAll()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to count accounts")
		s.writeError(w, http.StatusInternalServerError, "failed to count accounts")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": all,
		"count":    count,
	})
}

// handleAccount returns one account snapshot by login
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	login, err := strconv.ParseInt(chi.URLParam(r, "account"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account number")
		return
	}

	account, err := s.accounts.Get(login)
	if err != nil {
		s.log.Error().Err(err).Int64("account", login).Msg("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}
	if account == nil {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}

	s.writeJSON(w, http.StatusOK, account)
}

// handleAccountDeals returns an account's deals from the last 24 hours plus
// its all-time trade statistics.
func (s *Server) handleAccountDeals(w http.ResponseWriter, r *http.Request) {
	login, err := strconv.ParseInt(chi.URLParam(r, "account"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid account number")
		return
	}

	account, err := s.accounts.Get(login)
	if err != nil {
		s.log.Error().Err(err).Int64("account", login).Msg("Failed to load account")
		s.writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}
	if account == nil {
		s.writeError(w, http.StatusNotFound, "account not found")
		return
	}

	now := time.Now().UTC()
	list, err := s.deals.ListByAccount(login, now.Add(-24*time.Hour), now)
	if err != nil {
		s.log.Error().Err(err).Int64("account", login).Msg("Failed to load deals")
		s.writeError(w, http.StatusInternalServerError, "failed to load deals")
		return
	}

	stats, err := s.deals.Stats(login)
	if err != nil {
		s.log.Error().Err(err).Int64("account", login).Msg("Failed to compute trade stats")
		s.writeError(w, http.StatusInternalServerError, "failed to compute trade stats")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"account": login,
		"deals":   list,
		"count":   len(list),
		"stats":   stats,
	})
}

// handleInvestments returns the active investment roster, oldest deposit first
func (s *Server) handleInvestments(w http.ResponseWriter, r *http.Request) {
	active, err := s.investments.ListActive()
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load investments")
		s.writeError(w, http.StatusInternalServerError, "failed to load investments")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"investments": active,
		"count":       len(active),
	})
}

// handleSystem reports host resource usage. Metrics that fail to collect are
// returned as null rather than failing the whole endpoint.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"goroutines":     runtime.NumGoroutine(),
		"uptime_seconds": int(time.Since(s.startupTime).Seconds()),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		response["cpu_percent"] = percentages[0]
	} else {
		response["cpu_percent"] = nil
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		response["memory_percent"] = vm.UsedPercent
		response["memory_used_mb"] = vm.Used / 1024 / 1024
	} else {
		response["memory_percent"] = nil
	}

	if usage, err := disk.Usage("/"); err == nil {
		response["disk_percent"] = usage.UsedPercent
	} else {
		response["disk_percent"] = nil
	}

	if stats, err := s.db.GetStats(); err == nil {
		response["database"] = stats
	}

	s.writeJSON(w, http.StatusOK, response)
}
