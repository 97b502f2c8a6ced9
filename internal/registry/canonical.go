package registry

import "github.com/riverdock/contractdesk/internal/domain"

// canonicalClauseIDs is the thirty-entry minimum inventory of clause types
// the registry seeds at process start. Order is insertion order only; the
// registry itself is a map.
var canonicalClauseIDs = []string{
	"INCOTERMS", "PRODUCT_AND_SPECS", "QUANTITY_TOLERANCE", "PRICE", "PAYMENT",
	"DELIVERY_PERIOD", "LOADING_RATE", "DEMURRAGE", "LAYTIME", "WEIGHT_QUALITY",
	"INSURANCE", "FORCE_MAJEURE", "GOVERNING_LAW", "ARBITRATION", "SANCTIONS",
	"ASSIGNMENT", "TITLE_RISK", "NOTICES", "CONFIDENTIALITY", "TERMINATION",
	"DEFAULT_AND_REMEDIES", "TRADE_RULES", "ORIGIN", "DESTINATION", "NOMINATION",
	"SHIPPING_TERMS", "VESSEL_APPROVAL", "ENVIRONMENTAL",
	"PENALTY_VOLUME_SHORTFALL", "PENALTY_LATE_DELIVERY",
}

// boundParameterByClauseID names, for clause ids that carry a bound-shaped
// parameter, the solver variable key the parser is expected to emit under
// `parameter`. Clause ids absent here never carry a bound (penalties,
// force majeure, legal boilerplate, etc).
var boundParameterByClauseID = map[string]string{
	"PRICE":               "price",
	"QUANTITY_TOLERANCE":  "qty_tolerance_pct",
	"LOADING_RATE":        "loading_rate",
	"DEMURRAGE":           "demurrage_rate",
	"LAYTIME":             "laytime_days",
}

func seedSnapshot() *snapshot {
	s := &snapshot{
		canonicalClauses:  make(map[string]domain.ClauseRequirement, len(canonicalClauseIDs)),
		families:          make(map[string]domain.FamilySignature, len(seedFamilies)),
		templates:         make(map[domain.TemplateKey]domain.Template, len(seedTemplates)),
		paramClassMembers: make(map[string][]string),
	}
	for _, id := range canonicalClauseIDs {
		s.canonicalClauses[id] = domain.ClauseRequirement{
			ClauseType:     id,
			ParameterClass: parameterClassOf(id),
			Level:          domain.LevelOptional,
			Description:    id,
		}
	}
	for _, f := range seedFamilies {
		s.families[f.FamilyID] = f
	}
	for _, t := range seedTemplates {
		s.templates[t.Key] = t
	}
	for class, members := range seedParamClasses {
		s.paramClassMembers[class] = append([]string(nil), members...)
	}
	return s
}

// parameterClassOf maps a clause id that carries a bound to its parameter
// class name (the class with the same members as boundParameterByClauseID
// names); clauses with no bound get no class.
func parameterClassOf(clauseID string) string {
	if _, ok := boundParameterByClauseID[clauseID]; !ok {
		return ""
	}
	return clauseID + "_CLASS"
}

var seedParamClasses = func() map[string][]string {
	out := map[string][]string{}
	for clauseID, param := range boundParameterByClauseID {
		out[clauseID+"_CLASS"] = []string{param}
	}
	return out
}()

// seedFamilies is the 7-entry family signature table.
var seedFamilies = []domain.FamilySignature{
	{
		FamilyID:          "vessel_purchase_fob",
		Direction:         domain.Supplier,
		TermType:          domain.TermLongTerm,
		Transport:         "vessel",
		DefaultIncoterms:  []domain.Incoterm{domain.FOB},
		DetectAnchors:     []string{"fob", "vessel", "bill of lading", "laytime", "demurrage"},
		ExpectedClauseIDs: []string{"PRICE", "DELIVERY_PERIOD", "LOADING_RATE", "DEMURRAGE", "LAYTIME"},
	},
	{
		FamilyID:          "vessel_sale_cfr",
		Direction:         domain.Customer,
		TermType:          domain.TermLongTerm,
		Transport:         "vessel",
		DefaultIncoterms:  []domain.Incoterm{domain.CFR},
		DetectAnchors:     []string{"cfr", "vessel", "discharge port", "demurrage"},
		ExpectedClauseIDs: []string{"PRICE", "DELIVERY_PERIOD", "DESTINATION", "DEMURRAGE"},
	},
	{
		FamilyID:          "vessel_dap",
		Direction:         domain.Customer,
		TermType:          domain.TermLongTerm,
		Transport:         "vessel",
		DefaultIncoterms:  []domain.Incoterm{domain.DAP},
		DetectAnchors:     []string{"dap", "delivered at place", "vessel", "discharge"},
		ExpectedClauseIDs: []string{"PRICE", "DELIVERY_PERIOD", "DESTINATION"},
	},
	{
		FamilyID:          "domestic_cpt",
		Direction:         domain.Customer,
		TermType:          domain.TermSpot,
		Transport:         "truck",
		DefaultIncoterms:  []domain.Incoterm{domain.FCA},
		DetectAnchors:     []string{"truck", "rail car", "domestic", "plant pickup"},
		ExpectedClauseIDs: []string{"PRICE", "DELIVERY_PERIOD"},
	},
	{
		FamilyID:          "domestic_multimodal",
		Direction:         domain.Customer,
		TermType:          domain.TermSpot,
		Transport:         "multimodal",
		DefaultIncoterms:  []domain.Incoterm{domain.FCA, domain.EXW},
		DetectAnchors:     []string{"barge", "rail", "truck", "multimodal"},
		ExpectedClauseIDs: []string{"PRICE", "DELIVERY_PERIOD"},
	},
	{
		FamilyID:          "lt_sale_cfr",
		Direction:         domain.Customer,
		TermType:          domain.TermLongTerm,
		Transport:         "vessel",
		DefaultIncoterms:  []domain.Incoterm{domain.CFR},
		DetectAnchors:     []string{"long term", "annual contract", "cfr", "vessel"},
		ExpectedClauseIDs: []string{"PRICE", "QUANTITY_TOLERANCE", "DELIVERY_PERIOD"},
	},
	{
		FamilyID:          "lt_purchase_fob",
		Direction:         domain.Supplier,
		TermType:          domain.TermLongTerm,
		Transport:         "vessel",
		DefaultIncoterms:  []domain.Incoterm{domain.FOB},
		DetectAnchors:     []string{"long term", "annual contract", "fob", "vessel"},
		ExpectedClauseIDs: []string{"PRICE", "QUANTITY_TOLERANCE", "LOADING_RATE"},
	},
}

// seedTemplates covers the (contract_type, incoterm) combinations exercised
// by the purchase/FOB and sale/CFR families named in the system's end-to-end
// scenarios, plus the other combinations the families above imply.
var seedTemplates = []domain.Template{
	{
		Key: domain.TemplateKey{ContractType: domain.TemplatePurchase, Incoterm: domain.FOB},
		Requirements: []domain.ClauseRequirement{
			{ClauseType: "PRICE", ParameterClass: "PRICE_CLASS", Level: domain.LevelRequired, Description: "unit price and currency"},
			{ClauseType: "QUANTITY_TOLERANCE", ParameterClass: "QUANTITY_TOLERANCE_CLASS", Level: domain.LevelRequired, Description: "quantity tolerance band"},
			{ClauseType: "DELIVERY_PERIOD", Level: domain.LevelRequired, Description: "delivery window"},
			{ClauseType: "LOADING_RATE", ParameterClass: "LOADING_RATE_CLASS", Level: domain.LevelRequired, Description: "loading rate"},
			{ClauseType: "DEMURRAGE", ParameterClass: "DEMURRAGE_CLASS", Level: domain.LevelRequired, Description: "demurrage rate"},
			{ClauseType: "PAYMENT", Level: domain.LevelRequired, Description: "payment terms"},
			{ClauseType: "LAYTIME", ParameterClass: "LAYTIME_CLASS", Level: domain.LevelExpected, Description: "laytime allowance"},
			{ClauseType: "FORCE_MAJEURE", Level: domain.LevelExpected, Description: "force majeure"},
			{ClauseType: "GOVERNING_LAW", Level: domain.LevelOptional, Description: "governing law"},
		},
	},
	{
		Key: domain.TemplateKey{ContractType: domain.TemplateSale, Incoterm: domain.CFR},
		Requirements: []domain.ClauseRequirement{
			{ClauseType: "PRICE", ParameterClass: "PRICE_CLASS", Level: domain.LevelRequired, Description: "unit price and currency"},
			{ClauseType: "DELIVERY_PERIOD", Level: domain.LevelRequired, Description: "delivery window"},
			{ClauseType: "DESTINATION", Level: domain.LevelRequired, Description: "discharge destination"},
			{ClauseType: "DEMURRAGE", ParameterClass: "DEMURRAGE_CLASS", Level: domain.LevelExpected, Description: "demurrage rate"},
			{ClauseType: "PAYMENT", Level: domain.LevelRequired, Description: "payment terms"},
			{ClauseType: "FORCE_MAJEURE", Level: domain.LevelExpected, Description: "force majeure"},
		},
	},
	{
		Key: domain.TemplateKey{ContractType: domain.TemplateSale, Incoterm: domain.DAP},
		Requirements: []domain.ClauseRequirement{
			{ClauseType: "PRICE", ParameterClass: "PRICE_CLASS", Level: domain.LevelRequired, Description: "unit price and currency"},
			{ClauseType: "DELIVERY_PERIOD", Level: domain.LevelRequired, Description: "delivery window"},
			{ClauseType: "DESTINATION", Level: domain.LevelRequired, Description: "delivered destination"},
			{ClauseType: "PAYMENT", Level: domain.LevelRequired, Description: "payment terms"},
		},
	},
	{
		Key: domain.TemplateKey{ContractType: domain.TemplateSpotPurchase, Incoterm: domain.FCA},
		Requirements: []domain.ClauseRequirement{
			{ClauseType: "PRICE", ParameterClass: "PRICE_CLASS", Level: domain.LevelRequired, Description: "unit price and currency"},
			{ClauseType: "DELIVERY_PERIOD", Level: domain.LevelRequired, Description: "delivery window"},
			{ClauseType: "PAYMENT", Level: domain.LevelExpected, Description: "payment terms"},
		},
	},
	{
		Key: domain.TemplateKey{ContractType: domain.TemplateSpotSale, Incoterm: domain.EXW},
		Requirements: []domain.ClauseRequirement{
			{ClauseType: "PRICE", ParameterClass: "PRICE_CLASS", Level: domain.LevelRequired, Description: "unit price and currency"},
			{ClauseType: "DELIVERY_PERIOD", Level: domain.LevelRequired, Description: "delivery window"},
		},
	},
}
