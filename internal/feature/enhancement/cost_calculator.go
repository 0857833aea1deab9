package enhancement

import "github.com/toolasha/agent/internal/formula"

// levelCost is one enhancement level's per-attempt inputs: the success
// probability from the formula engine plus the caller-supplied material and
// protection cost of a single attempt made at that level.
type levelCost struct {
	successRate    float64
	materialCost   float64
	protectionCost float64
}

// CostEstimate is the Markov-chain solve's output for one (currentLevel,
// targetLevel, protectFrom) strategy: expected attempts, expected
// protection-item consumption, and expected total cost to reach the target
// (spec §5 "Enhancement cost calculator (Markov chain / matrix inversion
// per enhancement strategy)").
type CostEstimate struct {
	ExpectedAttempts     float64
	ExpectedProtections  float64
	ExpectedMaterialCost float64
	ExpectedTotalCost    float64
}

// EstimateCost solves the absorbing Markov chain for an enhancement run
// from currentLevel to targetLevel. Levels below protectFrom destroy the
// item on failure, sending it back to level 0; levels at or above
// protectFrom are protected by a protection item, so a failed attempt
// leaves the level unchanged and only consumes the protection item.
//
// The chain's structure — every unprotected failure lands on the same
// state, level 0 — lets each unknown E[level] be carried as an affine
// function a+b*E[0] while folding downward from protectFrom-1 to 0, then
// solved for E[0] in closed form at the bottom. This is the same
// substitution a textbook absorbing chain with one recurrent class reduces
// to; it avoids pulling in a general-purpose matrix-inversion dependency
// for a chain that never actually needs one.
func EstimateCost(f *formula.Engine, currentLevel, targetLevel, protectFrom int, materialCostPerAttempt, protectionCostPerAttempt float64) CostEstimate {
	return EstimateCostFromRates(SuccessRates(f, targetLevel), currentLevel, targetLevel, protectFrom, materialCostPerAttempt, protectionCostPerAttempt)
}

// SuccessRates snapshots the formula engine's per-level success rate for
// every level below targetLevel. Calling this is the only part of the cost
// calculation that touches the formula engine; formula.Engine's
// single-goroutine-access contract means callers that solve several
// strategies concurrently (the worker pool) must take this snapshot on one
// goroutine before handing the pure numeric solve below to others.
func SuccessRates(f *formula.Engine, targetLevel int) []float64 {
	if targetLevel < 0 {
		targetLevel = 0
	}
	rates := make([]float64, targetLevel)
	for lvl := 0; lvl < targetLevel; lvl++ {
		rates[lvl] = f.EnhancementSuccessRate(lvl)
	}
	return rates
}

// EstimateCostFromRates is the pure numeric half of EstimateCost: given a
// precomputed success rate per level (see SuccessRates), it touches no
// shared state and is safe to run concurrently across worker-pool tasks.
func EstimateCostFromRates(rates []float64, currentLevel, targetLevel, protectFrom int, materialCostPerAttempt, protectionCostPerAttempt float64) CostEstimate {
	if targetLevel <= currentLevel {
		return CostEstimate{}
	}

	costs := make([]levelCost, targetLevel)
	for lvl := 0; lvl < targetLevel; lvl++ {
		c := levelCost{successRate: rates[lvl], materialCost: materialCostPerAttempt}
		if lvl >= protectFrom {
			c.protectionCost = protectionCostPerAttempt
		}
		costs[lvl] = c
	}

	attempts := make([]float64, targetLevel+1)  // attempts[l] = expected attempts to go l -> targetLevel
	cost := make([]float64, targetLevel+1)      // cost[l] = expected material+protection cost to go l -> targetLevel
	protections := make([]float64, targetLevel+1)

	// Protected zone: levels >= protectFrom never reset, so the recurrence
	// is a plain top-down fold with no unknowns to solve for.
	top := protectFrom
	if top > targetLevel {
		top = targetLevel
	}
	for lvl := targetLevel - 1; lvl >= top; lvl-- {
		c := costs[lvl]
		p := c.successRate
		attempts[lvl] = 1/p + attempts[lvl+1]
		protections[lvl] = 1/p + protections[lvl+1]
		cost[lvl] = (c.materialCost+c.protectionCost)/p + cost[lvl+1]
	}

	// Unprotected zone: a failed attempt at level l resets to level 0, so
	// attempts[l] and cost[l] both depend on attempts[0]/cost[0]. Carry
	// each as an affine function of the unknown at 0, fold down to l=0,
	// then solve the resulting single linear equation there.
	if top > 0 {
		aAttempts := make([]float64, top) // attempts[l] = aAttempts[l] + bAttempts[l]*attempts[0]
		bAttempts := make([]float64, top)
		aCost := make([]float64, top)
		bCost := make([]float64, top)
		aProt := make([]float64, top)
		bProt := make([]float64, top)

		nextA, nextB := attempts[top], 0.0
		nextCA, nextCB := cost[top], 0.0
		nextPA, nextPB := protections[top], 0.0

		for lvl := top - 1; lvl >= 0; lvl-- {
			c := costs[lvl]
			p := c.successRate
			q := 1 - p

			aAttempts[lvl] = 1 + p*nextA
			bAttempts[lvl] = p*nextB + q
			aCost[lvl] = c.materialCost + c.protectionCost + p*nextCA
			bCost[lvl] = p*nextCB + q
			aProt[lvl] = p * nextPA
			bProt[lvl] = p*nextPB + q

			nextA, nextB = aAttempts[lvl], bAttempts[lvl]
			nextCA, nextCB = aCost[lvl], bCost[lvl]
			nextPA, nextPB = aProt[lvl], bProt[lvl]
		}

		// At level 0 the affine function closes on itself:
		// attempts[0] = aAttempts[0] + bAttempts[0]*attempts[0].
		attempts0 := solveAffine(aAttempts[0], bAttempts[0])
		cost0 := solveAffine(aCost[0], bCost[0])
		prot0 := solveAffine(aProt[0], bProt[0])

		for lvl := 0; lvl < top; lvl++ {
			attempts[lvl] = aAttempts[lvl] + bAttempts[lvl]*attempts0
			cost[lvl] = aCost[lvl] + bCost[lvl]*cost0
			protections[lvl] = aProt[lvl] + bProt[lvl]*prot0
		}
	}

	if currentLevel < 0 || currentLevel > targetLevel {
		currentLevel = 0
	}
	return CostEstimate{
		ExpectedAttempts:     attempts[currentLevel],
		ExpectedProtections:  protections[currentLevel],
		ExpectedMaterialCost: cost[currentLevel],
		ExpectedTotalCost:    cost[currentLevel],
	}
}

// solveAffine solves x = a + b*x for x, i.e. x = a/(1-b). b is a failure
// probability product strictly below 1 whenever at least one level in the
// chain has a nonzero success rate, which EnhancementSuccessRate always
// guarantees (it floors at 0.05).
func solveAffine(a, b float64) float64 {
	denom := 1 - b
	if denom <= 0 {
		return a
	}
	return a / denom
}
