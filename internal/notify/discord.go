// Package notify delivers Discord webhook messages: newly opened planning,
// technical trouble, recovery, and site-contract-changed alerts. Delivery is
// fire-and-forget; a failed send is logged and never fails the cycle.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/fitsched/internal/planning"
	"github.com/example/fitsched/internal/weather"
)

type Options struct {
	WebhookURL string
	Enabled    bool
	Username   string
	AvatarURL  string
	City       string
	Weather    *weather.Client
	Log        *slog.Logger

	// OnDeliveryFailure observes failed sends (metrics hook).
	OnDeliveryFailure func()
}

type Dispatcher struct {
	http *resty.Client
	opts Options
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Dispatcher{
		http: resty.New().SetTimeout(10 * time.Second),
		opts: opts,
	}
}

type payload struct {
	Content   string `json:"content"`
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// NotifyPlanning announces newly opened slots for the target date, enriched
// with current weather when available.
func (d *Dispatcher) NotifyPlanning(ctx context.Context, targetDate time.Time, appeared []planning.Entry) {
	if !d.enabled() || len(appeared) == 0 {
		return
	}
	var sum *weather.Summary
	if d.opts.Weather != nil {
		sum = d.opts.Weather.Current(ctx, d.opts.City)
	}
	d.send(ctx, FormatPlanningMessage(targetDate, appeared, sum, d.opts.City))
}

// FormatPlanningMessage renders the planning announcement. Exposed for tests.
func FormatPlanningMessage(targetDate time.Time, appeared []planning.Entry, sum *weather.Summary, city string) string {
	entries := make([]planning.Entry, len(appeared))
	copy(entries, appeared)
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].StartTime != entries[j].StartTime {
			return entries[i].StartTime < entries[j].StartTime
		}
		return entries[i].ActivityName < entries[j].ActivityName
	})

	lines := []string{
		"🏋️ **PLANNING SPORT DISPONIBLE !** 🎉",
		"",
		fmt.Sprintf("📅 Planning ouvert pour le %s", targetDate.Format("02/01/2006")),
	}
	if sum != nil {
		lines = append(lines,
			"",
			fmt.Sprintf("🌤️ **Météo du jour à %s :**", city),
			fmt.Sprintf("• Température : %d°C", sum.TemperatureC),
			fmt.Sprintf("• Conditions : %s", sum.Description),
			fmt.Sprintf("• Humidité : %d%%", sum.Humidity),
		)
	}
	lines = append(lines, "", "📋 **Nouveaux cours :**")

	var full, booked int
	for _, e := range entries {
		var status []string
		if e.IsBooked {
			booked++
			status = append(status, "🎟️ [Réservé]")
		}
		if e.IsFull {
			full++
			status = append(status, "⛔ [Complet]")
		}
		line := fmt.Sprintf("• %s - %s (%s) @ %s", e.StartTime, e.ActivityName, e.Capacity, e.Room)
		if len(status) > 0 {
			line += " " + strings.Join(status, " ")
		}
		lines = append(lines, line)
	}

	lines = append(lines,
		"",
		"📊 **Résumé :**",
		fmt.Sprintf("• %d nouveau(x) cours", len(entries)),
		fmt.Sprintf("• %d disponible(s)", len(entries)-full),
		fmt.Sprintf("• %d complet(s)", full),
		fmt.Sprintf("• %d déjà réservé(s)", booked),
		"",
		"-------------------",
		"Réservez vite vos places ! 🎟️",
	)
	return strings.Join(lines, "\n")
}

// AlertFailure implements retry.Alerter.
func (d *Dispatcher) AlertFailure(ctx context.Context, err error, errorCount int, nextRetry time.Duration) {
	if !d.enabled() {
		return
	}
	msg := strings.Join([]string{
		"⚠️ **ATTENTION - PROBLÈME TECHNIQUE** ⚠️",
		"",
		"🔧 **Le système de surveillance rencontre des difficultés :**",
		fmt.Sprintf("• Erreur #%d : %v", errorCount, err),
		fmt.Sprintf("• Prochaine tentative dans %s", nextRetry),
		"",
		"⚡ Le système continue de fonctionner mais il est conseillé de :",
		"• Vérifier manuellement vos réservations sur le site",
		"• Ne pas vous fier uniquement aux notifications",
		"",
		"-------------------",
		"Le système vous tiendra informé dès qu'il sera rétabli 🛠️",
	}, "\n")
	d.send(ctx, msg)
}

// AlertSiteChanged implements retry.Alerter. Raised when parsing keeps
// failing: the page structure probably changed and code needs updating.
func (d *Dispatcher) AlertSiteChanged(ctx context.Context, err error) {
	if !d.enabled() {
		return
	}
	msg := strings.Join([]string{
		"🚨 **STRUCTURE DU SITE MODIFIÉE ?** 🚨",
		"",
		"Les marqueurs attendus sont introuvables sur la page du planning :",
		fmt.Sprintf("• %v", err),
		"",
		"Une intervention est probablement nécessaire (mise à jour des sélecteurs).",
	}, "\n")
	d.send(ctx, msg)
}

// AlertRecovered implements retry.Alerter.
func (d *Dispatcher) AlertRecovered(ctx context.Context) {
	if !d.enabled() {
		return
	}
	msg := strings.Join([]string{
		"✅ **SYSTÈME RÉTABLI** ✅",
		"",
		"🛠️ **La surveillance fonctionne à nouveau :**",
		"• Les erreurs ont été résolues",
		"• Les vérifications reprennent normalement",
		"",
		"-------------------",
		"Le système continue son travail normalement 🚀",
	}, "\n")
	d.send(ctx, msg)
}

func (d *Dispatcher) enabled() bool {
	return d.opts.Enabled && d.opts.WebhookURL != ""
}

func (d *Dispatcher) send(ctx context.Context, content string) {
	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(payload{
			Content:   content,
			Username:  d.opts.Username,
			AvatarURL: d.opts.AvatarURL,
		}).
		Post(d.opts.WebhookURL)
	if err != nil {
		d.opts.Log.Error("discord delivery failed", "err", err)
		d.deliveryFailed()
		return
	}
	if resp.StatusCode() != http.StatusNoContent && resp.StatusCode() >= 300 {
		d.opts.Log.Error("discord delivery rejected", "status", resp.StatusCode(), "body", string(resp.Body()))
		d.deliveryFailed()
		return
	}
	d.opts.Log.Debug("discord notification sent", "bytes", len(content))
}

func (d *Dispatcher) deliveryFailed() {
	if d.opts.OnDeliveryFailure != nil {
		d.opts.OnDeliveryFailure()
	}
}
