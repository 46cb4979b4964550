package library

import (
	"github.com/prometheus/client_golang/prometheus"

	"go-library-catalog/internal/domain"
)

// Metrics 业务指标；nil 时所有方法为空操作
type Metrics struct {
	booksTotal    prometheus.Gauge
	usersTotal    prometheus.Gauge
	activeLoans   prometheus.Gauge
	borrowedTotal prometheus.Counter
	returnedTotal prometheus.Counter
	rejectedTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		booksTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_books", Help: "Books currently in the catalog",
		}),
		usersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_users", Help: "Registered users",
		}),
		activeLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "library_active_loans", Help: "Outstanding loans",
		}),
		borrowedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_borrows_total", Help: "Successful borrows",
		}),
		returnedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "library_returns_total", Help: "Successful returns",
		}),
		rejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "library_borrow_rejections_total", Help: "Borrow attempts rejected by a lending rule",
		}, []string{"rule"}),
	}
	if reg != nil {
		reg.MustRegister(m.booksTotal, m.usersTotal, m.activeLoans, m.borrowedTotal, m.returnedTotal, m.rejectedTotal)
	}
	return m
}

func (m *Metrics) sizes(books, users, active int) {
	if m == nil {
		return
	}
	m.booksTotal.Set(float64(books))
	m.usersTotal.Set(float64(users))
	m.activeLoans.Set(float64(active))
}

func (m *Metrics) borrowed() {
	if m != nil {
		m.borrowedTotal.Inc()
	}
}

func (m *Metrics) returned() {
	if m != nil {
		m.returnedTotal.Inc()
	}
}

func (m *Metrics) rejected(rule domain.Rule) {
	if m != nil {
		m.rejectedTotal.WithLabelValues(string(rule)).Inc()
	}
}

func (m *Metrics) BorrowedTotal() prometheus.Counter     { return m.borrowedTotal }
func (m *Metrics) ReturnedTotal() prometheus.Counter     { return m.returnedTotal }
func (m *Metrics) RejectedTotal() *prometheus.CounterVec { return m.rejectedTotal }
func (m *Metrics) ActiveLoans() prometheus.Gauge         { return m.activeLoans }
