package shopify

const variantFields = `
  id
  title
  price
  inventoryQuantity
  availableForSale
  image { url }
  product {
    id
    title
    onlineStoreUrl
    featuredImage { url }
  }
`

// productVariantsQuery pages through variants matching a search query.
const productVariantsQuery = `
query productVariants($first: Int!, $after: String, $query: String) {
  productVariants(first: $first, after: $after, query: $query) {
    pageInfo {
      hasNextPage
      endCursor
    }
    nodes {` + variantFields + `}
  }
}
`

const productVariantQuery = `
query productVariant($id: ID!) {
  productVariant(id: $id) {` + variantFields + `}
}
`

// fulfillmentOrdersQuery lists the fulfillment orders of one order.
const fulfillmentOrdersQuery = `
query fulfillmentOrders($id: ID!) {
  order(id: $id) {
    fulfillmentOrders(first: 20) {
      nodes {
        id
        status
      }
    }
  }
}
`

const fulfillmentCreateMutation = `
mutation fulfillmentCreate($fulfillment: FulfillmentInput!) {
  fulfillmentCreate(fulfillment: $fulfillment) {
    fulfillment { id }
    userErrors { field message }
  }
}
`

const webhookFields = `
  id
  topic
  createdAt
  endpoint {
    __typename
    ... on WebhookHttpEndpoint { callbackUrl }
  }
`

const webhookSubscriptionCreateMutation = `
mutation webhookSubscriptionCreate($topic: WebhookSubscriptionTopic!, $webhookSubscription: WebhookSubscriptionInput!) {
  webhookSubscriptionCreate(topic: $topic, webhookSubscription: $webhookSubscription) {
    webhookSubscription {` + webhookFields + `}
    userErrors { field message }
  }
}
`

const webhookSubscriptionDeleteMutation = `
mutation webhookSubscriptionDelete($id: ID!) {
  webhookSubscriptionDelete(id: $id) {
    deletedWebhookSubscriptionId
    userErrors { field message }
  }
}
`

const webhookSubscriptionsQuery = `
query webhookSubscriptions($first: Int!) {
  webhookSubscriptions(first: $first) {
    nodes {` + webhookFields + `}
  }
}
`
