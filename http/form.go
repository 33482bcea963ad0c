package http

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"fraudguard/inference"
	"fraudguard/ml"
	"fraudguard/presentation"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// formFields 表单字段名, in vector order.
var formFields = [ml.FeatureCount]string{"v1", "v2", "v3", "v4", "v5", "amount"}

var formLabels = [ml.FeatureCount]string{"V1", "V2", "V3", "V4", "V5", "Amount"}

type formInput struct {
	Name  string
	Label string
	Value string
}

type pageData struct {
	Blocked       bool
	BlockedReason string
	ModelPath     string
	Presets       []inference.PresetInfo
	Inputs        []formInput
	Error         string
	View          *presentation.View
	Chart         template.HTML
}

// RegisterFormHandlers 注册表单页面
func RegisterFormHandlers(mux *http.ServeMux, app *App) {
	h := &formHandlers{app: app}
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /{$}", h.handleSubmit)
}

type formHandlers struct {
	app *App
}

func (h *formHandlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !h.app.Facade.Available() {
		h.renderBlocked(w)
		return
	}
	sess := h.app.Sessions.Get(w, r)
	h.render(w, http.StatusOK, h.page(sess.State(), ""))
}

func (h *formHandlers) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !h.app.Facade.Available() {
		h.renderBlocked(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.render(w, http.StatusBadRequest, h.page(inference.SessionState{}, err.Error()))
		return
	}
	sess := h.app.Sessions.Get(w, r)

	if preset := r.PostFormValue("preset"); preset != "" {
		if err := sess.Apply(inference.Preset(preset)); err != nil {
			h.render(w, http.StatusBadRequest, h.page(sess.State(), err.Error()))
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	if r.PostFormValue("action") != "predict" {
		h.render(w, http.StatusBadRequest, h.page(sess.State(), "unknown form action"))
		return
	}

	fields, err := parseFormFields(r)
	if err != nil {
		// Keep the typed values so the user can fix them.
		state := sess.State()
		h.render(w, http.StatusBadRequest, h.pageWithRaw(state, r, err.Error()))
		return
	}
	sess.Set(fields)
	if _, err := sess.Predict(r.Context(), h.app.Facade); err != nil {
		h.app.Logger.Info("form prediction rejected",
			zap.String("session", sess.ID),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
	}
	// The outcome is kept on the session and shown by the GET.
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *formHandlers) renderBlocked(w http.ResponseWriter) {
	h.render(w, http.StatusServiceUnavailable, pageData{
		Blocked:       true,
		BlockedReason: errorText(h.app.Facade.LoadError()),
		ModelPath:     h.app.Model.Path,
	})
}

func (h *formHandlers) page(state inference.SessionState, errMsg string) pageData {
	v := state.Fields.Vector()
	data := pageData{
		Presets: inference.Presets(),
		Inputs:  make([]formInput, 0, ml.FeatureCount),
		Error:   errMsg,
	}
	for i := range formFields {
		data.Inputs = append(data.Inputs, formInput{
			Name:  formFields[i],
			Label: formLabels[i],
			Value: strconv.FormatFloat(v[i], 'f', -1, 64),
		})
	}
	if data.Error == "" && state.Err != nil {
		data.Error = state.Err.Error()
	}
	if state.Last != nil {
		view := h.app.Formatter.Present(*state.Last)
		data.View = &view
		data.Chart = template.HTML(presentation.RenderSVG(view.Chart))
	}
	return data
}

func (h *formHandlers) pageWithRaw(state inference.SessionState, r *http.Request, errMsg string) pageData {
	data := h.page(state, errMsg)
	for i := range data.Inputs {
		data.Inputs[i].Value = r.PostFormValue(data.Inputs[i].Name)
	}
	data.View, data.Chart = nil, ""
	return data
}

func (h *formHandlers) render(w http.ResponseWriter, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, data); err != nil {
		h.app.Logger.Error("failed to render page", zap.Error(err))
	}
}

// parseFormFields 解析表单数值. Blank inputs count as 0; NaN and Inf parse
// here and are rejected by the facade.
func parseFormFields(r *http.Request) (ml.TransactionFeatures, error) {
	var v ml.FeatureVector
	var bad []string
	for i, name := range formFields {
		raw := strings.TrimSpace(r.PostFormValue(name))
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			bad = append(bad, formLabels[i])
			continue
		}
		v[i] = f
	}
	if len(bad) > 0 {
		return ml.TransactionFeatures{}, fmt.Errorf("%w: not a number: %s",
			inference.ErrInvalidInput, strings.Join(bad, ", "))
	}
	return v.Features(), nil
}
