package index

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/riverdock/contractdesk/internal/audit"
)

func marshalContracts(v []audit.ContractSnapshot) (datatypes.JSON, error) {
	return marshalAny(v)
}

func marshalVariables(v []audit.VariableSnapshot) (datatypes.JSON, error) {
	return marshalAny(v)
}

func marshalResult(v map[string]float64) (datatypes.JSON, error) {
	return marshalAny(v)
}

func marshalIssues(v []string) (datatypes.JSON, error) {
	return marshalAny(v)
}

func marshalAny(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
