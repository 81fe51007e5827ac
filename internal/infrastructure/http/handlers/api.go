// Package handlers provides the HTTP handlers for the JSON API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/domain/nutrition"
	"github.com/nutrilens/v1/internal/domain/pricing"
	"github.com/nutrilens/v1/internal/ports/inbound"
	apperrors "github.com/nutrilens/v1/pkg/errors"
)

// maxBodyBytes bounds request bodies; a 10MB image grows ~4/3 in base64.
const maxBodyBytes = 15 << 20

// APIHandlers serves the nutrition API endpoints.
type APIHandlers struct {
	analysis inbound.AnalysisService
	mealPlan inbound.MealPlanService
	chat     inbound.NutritionChatService
	prices   inbound.PriceService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewAPIHandlers creates the handler set.
func NewAPIHandlers(
	analysis inbound.AnalysisService,
	mealPlan inbound.MealPlanService,
	chat inbound.NutritionChatService,
	prices inbound.PriceService,
	logger *zap.Logger,
) *APIHandlers {
	return &APIHandlers{
		analysis: analysis,
		mealPlan: mealPlan,
		chat:     chat,
		prices:   prices,
		validate: validator.New(),
		logger:   logger,
	}
}

// analyzeImageRequest is the wire form of an image analysis request.
type analyzeImageRequest struct {
	ImageBase64       string                       `json:"image_base64" validate:"required"`
	Note              string                       `json:"note"`
	EditedIngredients []nutrition.IngredientRecord `json:"edited_ingredients,omitempty"`
	Locale            string                       `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

type analyzeTextRequest struct {
	Note              string                       `json:"note" validate:"required"`
	EditedIngredients []nutrition.IngredientRecord `json:"edited_ingredients,omitempty"`
	Locale            string                       `json:"locale" validate:"omitempty,bcp47_language_tag"`
}

type chatRequest struct {
	Message string              `json:"message" validate:"required"`
	Locale  string              `json:"locale" validate:"omitempty,bcp47_language_tag"`
	Context inbound.ChatContext `json:"context"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type priceRequest struct {
	Name     string  `json:"name" validate:"required"`
	Category string  `json:"category"`
	Quantity float64 `json:"quantity" validate:"gte=0"`
	Unit     string  `json:"unit"`
}

type priceBatchRequest struct {
	Items []priceRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type priceBatchResponse struct {
	Estimates map[string]pricing.Estimate `json:"estimates"`
}

// AnalyzeImage handles POST /api/v1/analysis/image.
func (h *APIHandlers) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req analyzeImageRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.analysis.AnalyzeImage(r.Context(), inbound.AnalysisRequest{
		ImageBase64:       req.ImageBase64,
		Note:              req.Note,
		EditedIngredients: req.EditedIngredients,
		Locale:            req.Locale,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// AnalyzeText handles POST /api/v1/analysis/text.
func (h *APIHandlers) AnalyzeText(w http.ResponseWriter, r *http.Request) {
	var req analyzeTextRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.analysis.AnalyzeDescription(r.Context(), inbound.AnalysisRequest{
		Note:              req.Note,
		EditedIngredients: req.EditedIngredients,
		Locale:            req.Locale,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GenerateMealPlan handles POST /api/v1/mealplan.
func (h *APIHandlers) GenerateMealPlan(w http.ResponseWriter, r *http.Request) {
	var profile inbound.MealPlanProfile
	if !h.decode(w, r, &profile) {
		return
	}

	plan, err := h.mealPlan.GenerateWeek(r.Context(), profile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, plan)
}

// Chat handles POST /api/v1/chat.
func (h *APIHandlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}

	reply, err := h.chat.Reply(r.Context(), inbound.ChatRequest{
		Message: req.Message,
		Locale:  req.Locale,
		Context: req.Context,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

// EstimatePrice handles POST /api/v1/prices/estimate.
func (h *APIHandlers) EstimatePrice(w http.ResponseWriter, r *http.Request) {
	var req priceRequest
	if !h.decode(w, r, &req) {
		return
	}

	estimate, err := h.prices.Estimate(r.Context(), pricing.Item{
		Name:     req.Name,
		Category: req.Category,
		Quantity: req.Quantity,
		Unit:     req.Unit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, estimate)
}

// EstimatePriceBatch handles POST /api/v1/prices/batch.
func (h *APIHandlers) EstimatePriceBatch(w http.ResponseWriter, r *http.Request) {
	var req priceBatchRequest
	if !h.decode(w, r, &req) {
		return
	}

	items := make([]pricing.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, pricing.Item{
			Name:     it.Name,
			Category: it.Category,
			Quantity: it.Quantity,
			Unit:     it.Unit,
		})
	}

	estimates, err := h.prices.EstimateBatch(r.Context(), items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, priceBatchResponse{Estimates: estimates})
}

// decode reads, unmarshals, and validates the request body, writing the
// error response itself when the input is unusable.
func (h *APIHandlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, apperrors.NewBadRequestError("request body is not valid JSON"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, validationAppError(err))
		return false
	}
	return true
}

func validationAppError(err error) *apperrors.AppError {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewValidationError(err.Error())
	}
	fields := make([]apperrors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apperrors.ValidationError{
			Field:   fe.Field(),
			Value:   fe.Value(),
			Tag:     fe.Tag(),
			Message: fe.Error(),
		})
	}
	return apperrors.NewValidationErrors(fields)
}

func (h *APIHandlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *APIHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := apperrors.Wrap(err, "request failed")
	if !appErr.IsCallerInput() {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	h.writeJSON(w, appErr.StatusCode(), apperrors.ToErrorResponse(appErr, middleware.GetReqID(r.Context())))
}
