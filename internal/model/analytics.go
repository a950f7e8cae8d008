package model

// Analytics is the per-user aggregate summary over tracked reviews.
type Analytics struct {
	StatusCounts           StatusCounts          `json:"statusCounts"`
	AverageReviewTimeHours float64               `json:"averageReviewTimeHours"`
	RepositoryActivity     []RepositoryActivity  `json:"repositoryActivity"`
	TopContributors        []ContributorActivity `json:"topContributors"`
}

type StatusCounts struct {
	Open   int `json:"open"`
	Closed int `json:"closed"`
	Merged int `json:"merged"`
}

type RepositoryActivity struct {
	Repo  string `json:"repo"`
	Count int    `json:"count"`
}

type ContributorActivity struct {
	Author string `json:"author"`
	Count  int    `json:"count"`
}
