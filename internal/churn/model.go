// Package churn implements the fixed-coefficient logistic churn model used
// to estimate the retention effect of a hypothetical policy purchase.
package churn

import (
	"math"

	"github.com/helios-advisory/nbo-cli/internal/model"
)

// Logit coefficients. These are fixed configuration constants, not an online
// model; they were calibrated once against historical lapse data.
const (
	coefIntercept    = 1.10
	coefNumPolicies  = -0.42
	coefTenureYears  = -0.08
	coefVisits       = -0.15
	coefSatisfaction = -0.025
	coefComplaints   = 0.35
	coefAge          = 0.015
	coefIncome       = -0.00001
	coefEngagement   = -0.018
	coefChildren     = -0.05
	coefProtection   = -0.25
	coefSavings      = -0.30
	coefPension      = -0.35
)

// Detail is the churn breakdown behind one candidate recommendation.
type Detail = model.ChurnDetail

// Probability maps a client's feature vector, with the given area flags and
// policy count, to a churn probability in (0,1).
func Probability(cf model.ClientFeatures, numPolicies int, hasProtection, hasSavings, hasPension bool) float64 {
	logit := coefIntercept +
		coefNumPolicies*float64(numPolicies) +
		coefTenureYears*cf.TenureYears +
		coefVisits*float64(cf.VisitsLastYear) +
		coefSatisfaction*cf.Satisfaction +
		coefComplaints*float64(cf.Complaints) +
		coefAge*float64(cf.Age) +
		coefIncome*cf.Income +
		coefEngagement*cf.Engagement +
		coefChildren*float64(cf.Children) +
		coefProtection*b2f(hasProtection) +
		coefSavings*b2f(hasSavings) +
		coefPension*b2f(hasPension)

	return sigmoid(logit)
}

// Delta evaluates the churn effect of adding one policy in the candidate
// need area: probability with the current holdings versus probability with
// one more policy and the candidate area flag forced on. A positive delta
// means the purchase reduces churn risk.
func Delta(cf model.ClientFeatures, area model.NeedArea) Detail {
	before := Probability(cf, cf.NumPolicies, cf.HasProtection, cf.HasSavings, cf.HasPension)

	hasProtection := cf.HasProtection || area == model.NeedProtection
	hasSavings := cf.HasSavings || area == model.NeedSavings
	hasPension := cf.HasPension || area == model.NeedPension
	after := Probability(cf, cf.NumPolicies+1, hasProtection, hasSavings, hasPension)

	return Detail{
		Before: before,
		After:  after,
		Delta:  before - after,
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
