package server

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/tidwall/gjson"

	"github.com/diamondlab/pricer/pkg/contract"
	"github.com/diamondlab/pricer/pkg/frame"
	"github.com/diamondlab/pricer/pkg/serving"
)

type handlers struct {
	service *serving.Service
	parser  *requestParser
}

func (h *handlers) Health(c *fiber.Ctx) error {
	return c.JSON(h.service.Health())
}

func (h *handlers) Predict(c *fiber.Ctx) error {
	records, cerr := h.parser.parseRecords(c)
	if cerr != nil {
		return cerr
	}

	prices, cerr := h.service.Predict(records)
	if cerr != nil {
		return cerr
	}

	return c.JSON(contract.PredictResponse{PredictedPrice: prices})
}

type requestParser struct{}

func newRequestParser() *requestParser {
	return &requestParser{}
}

// parseRecords accepts either a JSON array of feature records or a single
// record object, normalized to a batch. Type errors name the offending
// field and value.
func (p *requestParser) parseRecords(c *fiber.Ctx) ([]frame.Record, *contract.Error) {
	body := c.Body()
	if len(body) == 0 {
		return nil, contract.NewError(contract.ErrorCodeBadRequest, "empty request body")
	}

	var records []frame.Record
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var single frame.Record
	if err := json.Unmarshal(body, &single); err != nil {
		if typeErr, ok := err.(*json.UnmarshalTypeError); ok {
			result := gjson.GetBytes(body, typeErr.Field)
			value := result.Str
			if value == "" {
				value = result.Raw
			}
			return nil, contract.NewErrorf(contract.ErrorCodeInvalidParameterValue,
				"Invalid value %s for parameter '%s'", value, typeErr.Field)
		}
		return nil, contract.NewError(contract.ErrorCodeBadRequest,
			fmt.Sprintf("invalid JSON body: %v", err))
	}

	return []frame.Record{single}, nil
}
