package catalog

import "talentbook-middleware/models"

const (
	CategoryVerification = "verification"
	CategoryBoost        = "boost"
	CategorySubscription = "subscription"
	CategoryJobPosts     = "job_posts"
	CategoryEnterprise   = "enterprise"
	CategoryOutreach     = "outreach"
	CategoryPromotion    = "promotion"
)

const (
	UserTypeJobSeeker = "job_seeker"
	UserTypeEmployer  = "employer"
	UserTypeBoth      = "both"
)

// Product is an item purchasable through Stripe Checkout. Price is in the
// minor currency unit.
type Product struct {
	ID          string `json:"id" yaml:"id"`
	PriceID     string `json:"priceId" yaml:"priceId"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Mode        string `json:"mode" yaml:"mode"`
	Price       int64  `json:"price" yaml:"price"`
	Currency    string `json:"currency" yaml:"currency"`
	Category    string `json:"category" yaml:"category"`
	UserType    string `json:"userType" yaml:"userType"`
	Popular     bool   `json:"popular,omitempty" yaml:"popular"`
}

func (p Product) IsSubscription() bool {
	return p.Mode == models.ModeSubscription
}

var products = []Product{
	{
		ID:          "prod_SxkyxEVxeDOsi4",
		PriceID:     "price_1S1pS7B0UOyKXg2VjEtaunLm",
		Name:        "Account Verification Fee",
		Description: "Verify your account for enhanced credibility",
		Mode:        models.ModePayment,
		Price:       100,
		Currency:    "eur",
		Category:    CategoryVerification,
		UserType:    UserTypeBoth,
	},
	{
		ID:          "prod_Sxkxm8chH8YAIF",
		PriceID:     "price_1S1pRBB0UOyKXg2VGIxGJhu8",
		Name:        "Spotlight Boost",
		Description: "Get 48 hours of enhanced profile visibility",
		Mode:        models.ModePayment,
		Price:       499,
		Currency:    "eur",
		Category:    CategoryBoost,
		UserType:    UserTypeJobSeeker,
	},
	{
		ID:          "prod_SxkwP250qwXKUS",
		PriceID:     "price_1S1pQnB0UOyKXg2Va1kY2zIz",
		Name:        "Candidates Pro",
		Description: "Advanced features for job seekers including priority placement and messaging",
		Mode:        models.ModeSubscription,
		Price:       1200,
		Currency:    "eur",
		Category:    CategorySubscription,
		UserType:    UserTypeJobSeeker,
		Popular:     true,
	},
	{
		ID:          "prod_SxkvVDuP0XlWWM",
		PriceID:     "price_1S1pPUB0UOyKXg2VMn1YWHeH",
		Name:        "2 Job Posts",
		Description: "One-time purchase for 2 job post credits",
		Mode:        models.ModePayment,
		Price:       50000,
		Currency:    "eur",
		Category:    CategoryJobPosts,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_Sxku8Np2VVIbRB",
		PriceID:     "price_1S1pOiB0UOyKXg2VA1puq0U9",
		Name:        "Top 100 Brand Leaderboard",
		Description: "Elite brand visibility and recognition in our Top 100 leaderboard",
		Mode:        models.ModeSubscription,
		Price:       10000000,
		Currency:    "eur",
		Category:    CategoryEnterprise,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxkuRIJ1jpTYSf",
		PriceID:     "price_1S1pOHB0UOyKXg2VPHBBOAnT",
		Name:        "Enterprise Connect",
		Description: "GDPR-safe contact access with premium support and compliance tools",
		Mode:        models.ModeSubscription,
		Price:       5000000,
		Currency:    "eur",
		Category:    CategoryEnterprise,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_Sxktl0mR8KJ2eB",
		PriceID:     "price_1S1pNRB0UOyKXg2V6EuAmmVH",
		Name:        "Unlimited Invites",
		Description: "Unlimited connection requests with fair-use protections",
		Mode:        models.ModeSubscription,
		Price:       2500000,
		Currency:    "eur",
		Category:    CategoryOutreach,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxksQ5iDHzefCC",
		PriceID:     "price_1S1pMnB0UOyKXg2Va3NK6Rpm",
		Name:        "InMails 500",
		Description: "500 InMail messages per month for extended candidate outreach",
		Mode:        models.ModeSubscription,
		Price:       150000,
		Currency:    "eur",
		Category:    CategoryOutreach,
		UserType:    UserTypeEmployer,
		Popular:     true,
	},
	{
		ID:          "prod_SxksfJjgjwhntB",
		PriceID:     "price_1S1pMRB0UOyKXg2VOlHCkfW2",
		Name:        "InMails 200",
		Description: "200 InMail messages per month for direct candidate outreach",
		Mode:        models.ModeSubscription,
		Price:       100000,
		Currency:    "eur",
		Category:    CategoryOutreach,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxkqbNkV7FdLQr",
		PriceID:     "price_1S1pL9B0UOyKXg2VhM6XaOHD",
		Name:        "Promotional Package Platinum",
		Description: "Ultimate promotion package with exclusive placement and dedicated support",
		Mode:        models.ModeSubscription,
		Price:       200000,
		Currency:    "eur",
		Category:    CategoryPromotion,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxkqZwSsRHpvlO",
		PriceID:     "price_1S1pKjB0UOyKXg2VUpKr7uY4",
		Name:        "Promotional Package Diamond",
		Description: "Maximum exposure with top-tier placement and premium analytics",
		Mode:        models.ModeSubscription,
		Price:       150000,
		Currency:    "eur",
		Category:    CategoryPromotion,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxkpSa2Ger5PlY",
		PriceID:     "price_1S1pKGB0UOyKXg2VEMcjsKFm",
		Name:        "Promotional Package Gold",
		Description: "Premium visibility with featured badges and enhanced branding",
		Mode:        models.ModeSubscription,
		Price:       100000,
		Currency:    "eur",
		Category:    CategoryPromotion,
		UserType:    UserTypeEmployer,
		Popular:     true,
	},
	{
		ID:          "prod_Sxkp58iB2y0Nqa",
		PriceID:     "price_1S1pJgB0UOyKXg2VCVnTcrLf",
		Name:        "Promotion Package Silver",
		Description: "Enhanced job post visibility with priority search placement",
		Mode:        models.ModeSubscription,
		Price:       50000,
		Currency:    "eur",
		Category:    CategoryPromotion,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxknQzq2VbqDtB",
		PriceID:     "price_1S1pHeB0UOyKXg2VJiaoH7FQ",
		Name:        "Annual Promotion Add-on",
		Description: "Year-round promotion with significant cost savings",
		Mode:        models.ModeSubscription,
		Price:       900000,
		Currency:    "eur",
		Category:    CategoryPromotion,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxkmZ7X1toSBbM",
		PriceID:     "price_1S1pGeB0UOyKXg2ViDCraScF",
		Name:        "Employer Scale (Unlimited)",
		Description: "Unlimited job posts with advanced recruiting tools for large enterprises",
		Mode:        models.ModeSubscription,
		Price:       500000,
		Currency:    "eur",
		Category:    CategorySubscription,
		UserType:    UserTypeEmployer,
	},
	{
		ID:          "prod_SxklBPemcQRFwy",
		PriceID:     "price_1S1pG0B0UOyKXg2Vv0yQHhgi",
		Name:        "Employer Growth",
		Description: "Enhanced recruiting capabilities with priority support",
		Mode:        models.ModeSubscription,
		Price:       150000,
		Currency:    "eur",
		Category:    CategorySubscription,
		UserType:    UserTypeEmployer,
		Popular:     true,
	},
	{
		ID:          "prod_SxkkMUCwtSAfTM",
		PriceID:     "price_1S1pFTB0UOyKXg2Vin1jzpnm",
		Name:        "Employer Starter",
		Description: "Great for small teams starting to hire with essential features",
		Mode:        models.ModeSubscription,
		Price:       60000,
		Currency:    "eur",
		Category:    CategorySubscription,
		UserType:    UserTypeEmployer,
	},
}

// Products returns a copy of the static catalog in display order.
func Products() []Product {
	out := make([]Product, len(products))
	copy(out, products)
	return out
}

func ByID(id string) (Product, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func ByPriceID(priceID string) (Product, bool) {
	for _, p := range products {
		if p.PriceID == priceID {
			return p, true
		}
	}
	return Product{}, false
}

// ByCategory filters list without modifying it; order is preserved.
func ByCategory(list []Product, category string) []Product {
	out := []Product{}
	for _, p := range list {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// ByUserType keeps products targeted at userType or at both user types.
func ByUserType(list []Product, userType string) []Product {
	out := []Product{}
	for _, p := range list {
		if p.UserType == userType || p.UserType == UserTypeBoth {
			out = append(out, p)
		}
	}
	return out
}
