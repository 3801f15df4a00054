package server

import (
	"bufio"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/franz/catstats/internal/ingest"
	"github.com/franz/catstats/internal/query"
	"github.com/franz/catstats/internal/util"
	"github.com/gin-gonic/gin"
)

const (
	defaultLogLines = 100
	maxLogLines     = 2000
	defaultRuns     = 10
	maxRuns         = 200
)

func (s *Server) healthz(c *gin.Context) {
	loading, periods := s.Loading()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "loading": loading, "periods": periods})
}

func (s *Server) options(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"reports":     query.Reports,
		"cat_centers": query.CatCenters,
		"years":       query.Years(s.cfg.Now()),
		"periods":     []string{query.PeriodMonth, query.PeriodFiscalYear, query.PeriodCalendarYear},
	})
}

func (s *Server) report(c *gin.Context) {
	var f query.Filter
	if err := c.ShouldBindQuery(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.cfg.Reports.Run(c.Request.Context(), f)
	if err != nil {
		var fe *query.FilterError
		switch {
		case errors.As(err, &fe):
			c.JSON(http.StatusBadRequest, gin.H{"error": query.ErrInvalidFilter.Error(), "fields": fe.Fields})
		case errors.Is(err, query.ErrInvalidFilter):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			util.ErrorLog("Report %s failed: %v", f.Report, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, res)
}

func (s *Server) load(c *gin.Context) {
	if s.cfg.Loader == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "loads are not configured"})
		return
	}

	arg := c.Query("yyyymm")
	if arg == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "yyyymm is required (YYYYMM, YYYY or ALL)"})
		return
	}

	periods, full, err := ingest.Plan(arg, s.cfg.Now(), s.cfg.FirstYear)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.startLoad(periods, full); err != nil {
		if errors.Is(err, ErrLoadInProgress) || errors.Is(err, util.ErrLocked) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"full":    full,
		"periods": ingest.Labels(periods),
	})
}

type runResponse struct {
	ID                 string `json:"id"`
	Kind               string `json:"kind"`
	Periods            string `json:"periods"`
	Policy             string `json:"policy"`
	StartedAt          string `json:"started_at"`
	FinishedAt         string `json:"finished_at,omitempty"`
	Status             string `json:"status"`
	RowsFetched        int    `json:"rows_fetched"`
	BibsCreated        int    `json:"bibs_created"`
	FieldsCreated      int    `json:"fields_created"`
	RepeatablesCreated int    `json:"repeatables_created"`
	SkippedDuplicates  int    `json:"skipped_duplicates"`
	RowErrors          int    `json:"row_errors"`
	PeriodFailures     int    `json:"period_failures"`
	Error              string `json:"error,omitempty"`
}

func (s *Server) runs(c *gin.Context) {
	limit := boundedInt(c.Query("limit"), defaultRuns, maxRuns)

	runs, err := s.cfg.Runs.RecentRuns(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, r := range runs {
		resp := runResponse{
			ID:                 r.ID,
			Kind:               r.Kind,
			Periods:            r.Periods,
			Policy:             r.Policy,
			StartedAt:          r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
			Status:             r.Status,
			RowsFetched:        r.RowsFetched,
			BibsCreated:        r.BibsCreated,
			FieldsCreated:      r.FieldsCreated,
			RepeatablesCreated: r.RepeatablesCreated,
			SkippedDuplicates:  r.SkippedDuplicates,
			RowErrors:          r.RowErrors,
			PeriodFailures:     r.PeriodFailures,
			Error:              r.Error,
		}
		if !r.FinishedAt.IsZero() {
			resp.FinishedAt = r.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
		}
		out = append(out, resp)
	}

	c.JSON(http.StatusOK, gin.H{"runs": out})
}

func (s *Server) logs(c *gin.Context) {
	if s.cfg.LogFile == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "no log file configured"})
		return
	}

	n := boundedInt(c.Query("lines"), defaultLogLines, maxLogLines)
	lines, err := s.tail(n)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.String(http.StatusOK, "")
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var body []byte
	for _, l := range lines {
		body = append(body, l...)
		body = append(body, '\n')
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", body)
}

// tail returns the last n lines of the log file
func (s *Server) tail(n int) ([]string, error) {
	f, err := s.cfg.Fs.Open(s.cfg.LogFile)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	return ring, scanner.Err()
}

func boundedInt(s string, def, max int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
