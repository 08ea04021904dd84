package httpapi

import (
	"encoding/base64"

	"github.com/esignhq/esign/internal/esignerr"
	"github.com/esignhq/esign/internal/model"
	"github.com/esignhq/esign/internal/signpipeline"
	"github.com/esignhq/esign/internal/tasks"
)

// decodeFields matches a request's {field_id: value} body against the
// template fields assigned to a signing order, spec.md §6's "400 on size
// mismatch or missing required field". Signature fields carry a base64-
// encoded PNG instead of a plain string value.
func decodeFields(raw map[string]string, fields []model.TemplateField) ([]signpipeline.FieldValue, []tasks.FieldSubmission, error) {
	var values []signpipeline.FieldValue
	var submissions []tasks.FieldSubmission

	for _, f := range fields {
		v, present := raw[f.ID]
		if !present || v == "" {
			if f.Required {
				return nil, nil, esignerr.Errorf(esignerr.InvalidInput, "httpapi.decodeFields", "missing required field %q", f.ID)
			}
			continue
		}

		fv := signpipeline.FieldValue{Field: f}
		sub := tasks.FieldSubmission{FieldID: f.ID}

		if f.FieldType == model.FieldSignature {
			png, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, nil, esignerr.New(esignerr.InvalidInput, "httpapi.decodeFields", err)
			}
			fv.PNG = png
			sub.PNG = png
		} else {
			fv.Value = v
			sub.Value = v
		}

		values = append(values, fv)
		submissions = append(submissions, sub)
	}

	return values, submissions, nil
}
