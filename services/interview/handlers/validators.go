// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianInterview/services/interview/datatypes"
)

// init registers the interview_mode validation the create-session binding
// tags reference.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("interview_mode", validMode)
	}
}

func validMode(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case datatypes.QuestionBehavioral, datatypes.QuestionCoding,
		datatypes.QuestionMCQ, datatypes.QuestionFIB, datatypes.QuestionScenario:
		return true
	}
	return false
}
