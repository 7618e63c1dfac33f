package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/promptrelay/promptrelay/models"
)

func ProcessGenericBadRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
}

func ProcessGenericInternalError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// ProcessMissingField answers 422 for a required field absent from the request body.
func ProcessMissingField(c *gin.Context, field string) {
	c.JSON(http.StatusUnprocessableEntity, models.ValidationError{
		Detail: []models.ValidationErrorDetail{
			{
				Loc:  []string{"body", field},
				Msg:  "Field required",
				Type: "missing",
			},
		},
	})
}

// ProcessInvalidBody answers 422 for a body that could not be decoded. The
// decoder error only selects the message; it is never echoed to the client.
func ProcessInvalidBody(c *gin.Context, err error) {
	detail := models.ValidationErrorDetail{
		Loc:  []string{"body"},
		Msg:  "JSON decode error",
		Type: "json_invalid",
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field != "" {
			detail.Loc = append(detail.Loc, typeErr.Field)
			detail.Msg = "Input should be a valid string"
			detail.Type = "string_type"
		} else {
			detail.Msg = "Input should be a valid dictionary or object to extract fields from"
			detail.Type = "model_attributes_type"
		}
	}
	c.JSON(http.StatusUnprocessableEntity, models.ValidationError{
		Detail: []models.ValidationErrorDetail{detail},
	})
}
